package config

import "os"

func IsDebug() bool {
	return os.Getenv("EDUBOT_DEBUG") == "1"
}
