package main

import (
	"flag"
	"fmt"
	"log"
	"os"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	excelPath := flag.String("excel", "", "Path to the credentials spreadsheet (overrides config)")
	workers := flag.Int("workers", 0, "Number of concurrent workers (overrides config)")
	headless := flag.Bool("headless", false, "Run the browser headless")
	debug := flag.Bool("debug", false, "Enable detailed debug logging")
	stopOnNoSlots := flag.Bool("stop-on-no-slots", false, "Stop the whole batch on the first SIN_TURNOS result")
	flag.Parse()

	config, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *excelPath != "" {
		config.ExcelPath = *excelPath
	}
	if *workers > 0 {
		config.MaxWorkers = *workers
	}
	if *headless {
		config.Headless = true
	}
	if *debug {
		config.LogLevel = "debug"
	}
	if *stopOnNoSlots {
		config.StopOnNoSlots = true
	}

	logger, logFile, err := setupLogging(config)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Sync()
	logger.Infow("run log", "file", logFile)

	if _, err := os.Stat(config.ExcelPath); os.IsNotExist(err) {
		logger.Fatalw("spreadsheet not found", "path", config.ExcelPath)
	}

	store, err := OpenRecordStore(config.ExcelPath, logger)
	if err != nil {
		logger.Fatalw("could not load the spreadsheet", "error", err)
	}
	defer store.Close()

	fmt.Printf("Target URL: %s\n", config.URL)
	fmt.Printf("Credentials: %s (%d rows)\n", config.ExcelPath, len(store.Records()))
	fmt.Printf("Workers: %d\n", config.MaxWorkers)
	fmt.Println()

	browser, err := NewRodBrowser(config)
	if err != nil {
		logger.Fatalw("could not start the browser", "error", err)
	}
	defer browser.Close()

	NewRunner(config, logger, browser, store).Run()

	logger.Infow("run finished, spreadsheet updated")
}
