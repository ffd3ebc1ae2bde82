package config

// Metrics holds the Prometheus exporter's listener settings.
type Metrics struct {
	Enabled bool   `yaml:"Enabled"`
	Host    string `yaml:"Host"`
	Port    int    `yaml:"Port"`
}
