// Command flashtree is a small smoke-test harness for the engine package:
// open a durable store rooted at the given directory, apply a few
// operations, and print what comes back. It exists to give the storage
// core a runnable entry point, not as a real CLI.
package main

import (
	"flag"
	"fmt"
	"log"

	"go.uber.org/zap"

	"github.com/tpatterson-labs/flashtree/engine"
)

func main() {
	dataDir := flag.String("data", "flashtree-data", "directory for SST and WAL files")
	flag.Parse()

	zapLog, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("flashtree: build logger: %v", err)
	}
	defer zapLog.Sync()
	sugared := zapLog.Sugar()

	e, closeFn, err := engine.OpenLocal(*dataDir, sugared)
	if err != nil {
		log.Fatalf("flashtree: open %s: %v", *dataDir, err)
	}
	defer closeFn()

	if err := e.Put([]byte("hello"), []byte("world")); err != nil {
		log.Fatalf("flashtree: put: %v", err)
	}

	v, err := e.Get([]byte("hello"))
	if err != nil {
		log.Fatalf("flashtree: get: %v", err)
	}
	fmt.Printf("hello = %s\n", v)

	if err := e.Delete([]byte("hello")); err != nil {
		log.Fatalf("flashtree: delete: %v", err)
	}

	if _, err := e.Get([]byte("hello")); err == engine.ErrNotFound {
		fmt.Println("hello deleted")
	}
}
