// seed_roster.go uploads a skill matrix CSV to a running Cortex instance.
//
// Usage:
//
//	go run scripts/seed_roster.go -csv skills.csv -api http://localhost:8600 -token $CORTEX_ADMIN_TOKEN -mode merge
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"

	"github.com/MikeSquared-Agency/Cortex/internal/config"
	"github.com/MikeSquared-Agency/Cortex/internal/roster"
)

func main() {
	csvPath := flag.String("csv", "skills.csv", "path to the skill matrix CSV")
	apiURL := flag.String("api", "http://localhost:8600", "Cortex API base URL")
	token := flag.String("token", os.Getenv("CORTEX_ADMIN_TOKEN"), "admin bearer token")
	mode := flag.String("mode", string(roster.ImportMerge), "import mode: replace, merge or add_only")
	configPath := flag.String("config", "", "config used to validate the sheet locally")
	dryRun := flag.Bool("dry-run", false, "validate and print the matrix without uploading")
	flag.Parse()

	if _, err := roster.ParseImportMode(*mode); err != nil {
		log.Fatal(err)
	}

	body, err := os.ReadFile(*csvPath)
	if err != nil {
		log.Fatalf("read csv: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	matrix, err := roster.ParseSkillCSV(bytes.NewReader(body), cfg.ModalityIDs(), cfg.SkillIDs())
	if err != nil {
		log.Fatalf("invalid sheet: %v", err)
	}
	log.Printf("parsed %d workers from %s", len(matrix), *csvPath)

	if *dryRun {
		names := make([]string, 0, len(matrix))
		for name := range matrix {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			fmt.Printf("[%d] %s %v\n", i+1, name, matrix[name])
		}
		return
	}

	endpoint := *apiURL + "/api/v1/admin/roster/skills?" + url.Values{"mode": {*mode}}.Encode()
	req, err := http.NewRequest(http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "text/csv")
	if *token != "" {
		req.Header.Set("Authorization", "Bearer "+*token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		log.Fatalf("upload failed: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var stats roster.ImportStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		log.Fatalf("decode response: %v", err)
	}
	log.Printf("done: %d added, %d updated, %d skipped", stats.Added, stats.Updated, stats.Skipped)
}
