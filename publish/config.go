package publish

type configGetter interface {
	GetPublish() Config
}

type Config struct {
	Addr string `yaml:"addr"`
	// RetentionDays drops snapshots untouched for that many days,
	// payloads included. 0 keeps everything forever.
	RetentionDays int `yaml:"retentionDays"`
}
