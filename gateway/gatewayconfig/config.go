package gatewayconfig

type ConfigGetter interface {
	GetGateway() Config
}

type Config struct {
	Addr        string `yaml:"addr"`
	Domain      string `yaml:"domain"`
	CacheTTLSec int    `yaml:"cacheTtlSec"`
}
