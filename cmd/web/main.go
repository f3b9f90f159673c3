package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/avelin/tokenpulse"
)

func main() {
	configPath := flag.String("config", "", "optional YAML settings file")
	flag.Parse()

	settings, err := tokenpulse.LoadSettings(*configPath)
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}

	apiKey := os.Getenv(tokenpulse.BagsAPIKeyEnv)
	if apiKey == "" {
		log.Printf("%s not set, lifetime-fee sources disabled", tokenpulse.BagsAPIKeyEnv)
	}

	aggregator := tokenpulse.NewAggregator(settings, apiKey, tokenpulse.NewLogger("aggregator"))
	handler := tokenpulse.NewServer(aggregator, tokenpulse.NewLogger("web"))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := fmt.Sprintf(":%s", port)

	log.Printf("Listening at http://localhost:%s mint=%s", port, settings.Mint)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
