package utils

import "time"

type HTTPClientConfig struct {
	Timeout        time.Duration
	KATimeout      time.Duration
	ProxyURL       string
	ProxyUsername  string
	ProxyPassword  string
	UserAgent      string
	Token          string // bearer token, sent through an oauth2 transport
	Headers        map[string]string
	HighThreadMode bool // enlarged socket buffers for many segments on one host
}

type S3ClientConfig struct {
	Profile   string
	Region    string
	Endpoint  string
	PathStyle bool
}
