package remote

import (
	"log"
	"os"
)

var log_ = log.New(os.Stderr, "remote: ", log.LstdFlags)
