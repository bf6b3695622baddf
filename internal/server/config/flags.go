package config

import (
	"flag"
	"os"
	"time"

	"github.com/mbelovs/contractvault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-k string   blob backend ("local" or "s3")
//	-f string   base directory for the local backend
//	-m int      upload size ceiling, megabytes
//	-v int      retention ceiling, versions per file (0 keeps everything)
//	-s int      default chunk size, megabytes
//	-t int      chunked-upload session timeout, minutes
//	-i int      cleanup sweep interval, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Size flags are accepted as integers in megabytes and duration flags as
//     integers in minutes, then converted.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	// -c is taken by the JSON config file path, so the chunk size uses -s.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-k", "-f", "-m", "-v", "-s", "-t", "-i", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.StorageBackend, "k", config.StorageBackend, "blob backend (local or s3)")
	fs.StringVar(&config.BasePath, "f", config.BasePath, "base directory for the local backend")

	maxFileSize := fs.Int("m", int(config.MaxFileSize>>20), "max file size (in megabytes)")
	fs.IntVar(&config.MaxVersionsPerFile, "v", config.MaxVersionsPerFile, "max versions kept per file (0 keeps everything)")
	chunkSize := fs.Int("s", int(config.DefaultChunkSize>>20), "default chunk size (in megabytes)")
	sessionTimeout := fs.Int("t", int(config.ChunkSessionTimeout.Minutes()), "chunk session timeout (in minutes)")
	cleanupInterval := fs.Int("i", int(config.CleanupInterval.Minutes()), "cleanup sweep interval (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.MaxFileSize = int64(*maxFileSize) << 20
	config.DefaultChunkSize = int64(*chunkSize) << 20
	config.ChunkSessionTimeout = time.Duration(*sessionTimeout) * time.Minute
	config.CleanupInterval = time.Duration(*cleanupInterval) * time.Minute
}
