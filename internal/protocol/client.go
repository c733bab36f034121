package protocol

// Inbound payloads.

type Start struct {
	Mode string `json:"mode,omitempty"` // normal, ode1, ode2
	Bot  bool   `json:"bot,omitempty"`  // add a bot opponent
	Seed int64  `json:"seed,omitempty"` // terrain seed, 0 picks one
}

type Fire struct {
	Function string `json:"function"`
}

type Angle struct {
	Angle float64 `json:"angle"` // radians
}
