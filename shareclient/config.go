package shareclient

import "time"

type Config struct {
	// PublishURL is the authoring api base, GatewayURL the public read
	// side; when GatewayURL is empty both go to PublishURL.
	PublishURL string        `yaml:"publishUrl"`
	GatewayURL string        `yaml:"gatewayUrl"`
	Timeout    time.Duration `yaml:"timeout"`
}
