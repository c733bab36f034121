package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MJE43/funcwar-server/internal/hint"
)

const systemPrompt = `You aim shots in an artillery game where the projectile follows a math function.
Coordinates are local to the shooter: the shooter is at (0,0), x grows toward the enemy, y grows up.
Operators: + - * / ^ and sin cos tan ln log sqrt abs exp. Implicit multiplication is allowed.
Mode "normal": answer f(x); the path is y = f(x) - f(0).
Mode "ode1": answer y' = f(x, y) with y(0) = 0.
Mode "ode2": answer y'' = f(x, y, dy) with y(0) = 0 and y'(0) = tan(angle).
You may use the placeholders {dx}, {dy}, {slope} and {a}; they are replaced with the context values.
The path must not pass through any obstacle circle. When needsMultiKill is true, pass through at least two enemies.
Answer with the expression only, on one line, no explanation.`

func buildPrompt(c hint.Context) (string, error) {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("llm: marshal context: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Attempt %d of %d.\n", c.Attempt, c.MaxAttempts)
	if len(c.Feedback) > 0 {
		b.WriteString("Earlier answers were rejected; the feedback lists why and where each one stopped.\n")
	}
	b.WriteString("Context:\n")
	b.Write(raw)
	return b.String(), nil
}
