package data

import "embed"

var (
	//go:embed presets.yaml
	Presets embed.FS
)
