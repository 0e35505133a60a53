package config

import (
	"os"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/anyproto/any-sync/metric"
	"gopkg.in/yaml.v3"

	"github.com/lumilearn/lumilearn-publish-server/db"
	"github.com/lumilearn/lumilearn-publish-server/gateway/gatewayconfig"
	"github.com/lumilearn/lumilearn-publish-server/publish"
	"github.com/lumilearn/lumilearn-publish-server/redisprovider"
	"github.com/lumilearn/lumilearn-publish-server/store"
)

const CName = "config"

func NewFromFile(path string) (c *Config, err error) {
	c = &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return
}

type Config struct {
	Log     logger.Config        `yaml:"log"`
	Mongo   db.Mongo             `yaml:"mongo"`
	Redis   redisprovider.Config `yaml:"redis"`
	Metric  metric.Config        `yaml:"metric"`
	Publish publish.Config       `yaml:"publish"`
	S3Store store.Config         `yaml:"s3Store"`
	Gateway gatewayconfig.Config `yaml:"gateway"`
}

func (c *Config) Init(a *app.App) (err error) {
	return nil
}

func (c *Config) Name() (name string) {
	return CName
}

func (c *Config) GetMongo() db.Mongo {
	return c.Mongo
}

func (c *Config) GetRedis() redisprovider.Config {
	return c.Redis
}

func (c *Config) GetMetric() metric.Config {
	return c.Metric
}

func (c *Config) GetPublish() publish.Config {
	return c.Publish
}

func (c *Config) GetS3Store() store.Config {
	return c.S3Store
}

func (c *Config) GetGateway() gatewayconfig.Config {
	return c.Gateway
}
