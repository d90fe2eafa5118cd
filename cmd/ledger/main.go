package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/celerix-dev/celerix-ledger/internal/config"
	"github.com/celerix-dev/celerix-ledger/internal/engine"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
	"github.com/celerix-dev/celerix-ledger/pkg/sdk"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	command := strings.ToUpper(os.Args[1])
	args := os.Args[2:]

	// MIGRATE works on table files directly and needs no daemon.
	if command == "MIGRATE" {
		if len(args) < 4 {
			log.Fatal("Usage: ledger MIGRATE <srcDir> <srcFormat> <dstDir> <dstFormat>")
		}
		if err := migrate(cfg.Entities, args); err != nil {
			log.Fatal(err)
		}
		fmt.Println("OK")
		return
	}

	ledger, err := sdk.New(cfg.DataDir, cfg.Format, cfg.Entities)
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}
	if c, ok := ledger.(*sdk.Client); ok {
		defer c.Close()
	}

	switch command {
	case "ENTITIES":
		list, err := ledger.Entities()
		if err != nil {
			log.Fatal(err)
		}
		printJSON(list)

	case "LIST":
		if len(args) < 1 {
			log.Fatal("Usage: ledger LIST <entity>")
		}
		list, err := ledger.List(args[0])
		if err != nil {
			log.Fatal(err)
		}
		printJSON(list)

	case "GET":
		if len(args) < 2 {
			log.Fatal("Usage: ledger GET <entity> <id>")
		}
		rec, err := ledger.Get(args[0], args[1])
		if err != nil {
			log.Fatal(err)
		}
		printJSON(rec)

	case "CREATE":
		if len(args) < 2 {
			log.Fatal("Usage: ledger CREATE <entity> <json>")
		}
		rec, err := ledger.Create(args[0], parseObject(args[1]))
		if err != nil {
			log.Fatal(err)
		}
		printJSON(rec)

	case "UPDATE":
		if len(args) < 3 {
			log.Fatal("Usage: ledger UPDATE <entity> <id> <json>")
		}
		rec, err := ledger.Update(args[0], args[1], parseObject(args[2]))
		if err != nil {
			log.Fatal(err)
		}
		printJSON(rec)

	case "DEL":
		if len(args) < 2 {
			log.Fatal("Usage: ledger DEL <entity> <id>")
		}
		if err := ledger.Delete(args[0], args[1]); err != nil {
			log.Fatal(err)
		}
		fmt.Println("OK")

	case "PING":
		c, ok := ledger.(*sdk.Client)
		if !ok {
			fmt.Println("PONG (embedded)")
			return
		}
		if err := c.Ping(); err != nil {
			log.Fatal(err)
		}
		fmt.Println("PONG")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func migrate(entities []schema.Entity, args []string) error {
	open := func(dir, format string) (*engine.Registry, error) {
		f, err := engine.ParseFormat(format)
		if err != nil {
			return nil, err
		}
		p, err := engine.NewPersistence(dir, f)
		if err != nil {
			return nil, err
		}
		return engine.NewRegistry(p, entities, nil)
	}

	src, err := open(args[0], args[1])
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	dst, err := open(args[2], args[3])
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	return engine.Migrate(src, dst)
}

func parseObject(s string) map[string]any {
	var data map[string]any
	if err := json.Unmarshal([]byte(s), &data); err != nil || data == nil {
		log.Fatalf("Expected a JSON object, got %q", s)
	}
	return data
}

func printUsage() {
	fmt.Println("Ledger CLI - Interface for the ledger daemon")
	fmt.Println("\nUsage:")
	fmt.Println("  ledger ENTITIES")
	fmt.Println("  ledger LIST <entity>")
	fmt.Println("  ledger GET <entity> <id>")
	fmt.Println("  ledger CREATE <entity> <json>")
	fmt.Println("  ledger UPDATE <entity> <id> <json>")
	fmt.Println("  ledger DEL <entity> <id>")
	fmt.Println("  ledger PING")
	fmt.Println("  ledger MIGRATE <srcDir> <srcFormat> <dstDir> <dstFormat>")
	fmt.Println("\nEnvironment Variables:")
	fmt.Println("  LEDGER_STORE_ADDR     Address of the daemon; embedded mode when unset")
	fmt.Println("  LEDGER_DISABLE_TLS    Set to true to disable TLS")
	fmt.Println("  LEDGER_DATA_DIR       Data directory for embedded mode (default: ./data)")
	fmt.Println("  LEDGER_FORMAT         csv, xlsx or sqlite (default: csv)")
}

func printJSON(v any) {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(bytes))
}
