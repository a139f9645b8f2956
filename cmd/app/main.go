package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"TasaPull/internal/di"
	"TasaPull/pkg/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	checkOnly := flag.Bool("check", false, "validate the config, print the job table and exit")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Printf("config %s: %v", *configPath, err)
		return 2
	}
	if *checkOnly {
		printJobs(cfg)
		return 0
	}

	log.Printf("tasapull starting env=%s backend=%s kafka=%t scheduler=%t jobs=%d",
		cfg.Environment, cfg.Backend.Type, cfg.Kafka.Enabled, cfg.Scheduler.Enabled, len(cfg.Scheduler.Jobs))

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Printf("init: %v", err)
		return 1
	}
	defer cleanup()

	if err := app.Run(); err != nil {
		log.Printf("run: %v", err)
		return 1
	}
	return 0
}

func printJobs(cfg *config.Config) {
	fmt.Printf("config ok: backend=%s timezone=%s\n", cfg.Backend.Type, cfg.Scheduler.Timezone)
	for _, j := range cfg.Scheduler.Jobs {
		state := "on"
		if j.Disabled {
			state = "off"
		}
		fmt.Printf("  %-28s %-12s %-24s %-18q %s\n", j.Name, j.Kind, j.TipoTasa, j.Cron, state)
	}
}
