package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/loadgate/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string     HTTP bind address (e.g. ":8080")
//	-g string     gRPC health bind address
//	-d string     PostgreSQL DSN
//	-s string     token HMAC secret key
//	-t duration   token validity (e.g. "24h")
//	-x string     executor base URL
//	-k string     executor API key
//	-A string     admin token
//	-b string     S3 bucket for executor transcripts
//	-e string     S3 base endpoint
//	-l string     log level
//
// Only these flags are looked at; os.Args is filtered first so the -c flag
// handled by parseJson does not trip the parser.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-d", "-s", "-t", "-x", "-k", "-A", "-b", "-e", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run the HTTP API")
	fs.StringVar(&config.GRPCHealthAddr, "g", config.GRPCHealthAddr, "address and port to run the gRPC health service")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "token secret key")
	fs.DurationVar(&config.TokenValidityDuration, "t", config.TokenValidityDuration, "token validity")
	fs.StringVar(&config.ExecutorBaseURL, "x", config.ExecutorBaseURL, "executor base URL")
	fs.StringVar(&config.ExecutorAPIKey, "k", config.ExecutorAPIKey, "executor API key")
	fs.StringVar(&config.AdminToken, "A", config.AdminToken, "admin token")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
