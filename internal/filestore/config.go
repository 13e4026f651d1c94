package filestore

// Provider identifies the object storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// Config holds the settings needed to reach an object storage backend.
type Config struct {
	Provider Provider

	// Endpoint is the host:port of the storage server, e.g. "localhost:9000".
	Endpoint string

	AccessKey string
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends. Leave empty for MinIO.
	Region string

	// Bucket holds cached structure snapshots. It is created on connect
	// when missing.
	Bucket string
}

// DefaultConfig returns a local-dev MinIO config writing to bucket.
func DefaultConfig(endpoint, accessKey, secretKey, bucket string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    bucket,
	}
}
