package main

import (
	"encoding/json"
	"fmt"
	"time"

	"toolhub/internal/app"
	"toolhub/internal/catalogcache"
	"toolhub/internal/domain"
)

const (
	timePrecision = 10 * time.Millisecond
	timeFormat    = time.RFC3339
)

func writeJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printCycle(session *app.Session, jsonOutput bool) error {
	status := session.Status()
	catalog := session.Catalog()

	if jsonOutput {
		return writeJSON(map[string]any{
			"discovery": session.Manager().DiscoveryState(),
			"providers": status,
			"catalog":   catalog,
		})
	}

	fmt.Printf("discovery=%s providers=%d ready=%d\n",
		session.Manager().DiscoveryState(), len(status), session.Manager().Ready())
	for _, st := range status {
		line := fmt.Sprintf("  %-20s %-12s tools=%-3d prompts=%-3d %s",
			st.Name, st.State, st.Tools, st.Prompts, st.Duration.Round(timePrecision))
		if st.Error != "" {
			line += " error=" + st.Error
		}
		fmt.Println(line)
	}
	return printCatalog(catalog, false)
}

func printCatalog(catalog domain.CatalogSnapshot, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(catalog)
	}
	fmt.Printf("etag=%s tools=%d prompts=%d\n", shortETag(catalog.ETag), len(catalog.Tools), len(catalog.Prompts))
	for _, tool := range catalog.Tools {
		fmt.Printf("  tool    %s/%s\n", tool.Provider, tool.Name)
	}
	for _, prompt := range catalog.Prompts {
		fmt.Printf("  prompt  %s/%s\n", prompt.Provider, prompt.Name)
	}
	return nil
}

func printCachedEntries(entries []catalogcache.Entry, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(entries)
	}
	for _, entry := range entries {
		fmt.Printf("%s (stored %s)\n", entry.Provider, entry.StoredAt.Format(timeFormat))
		for _, tool := range entry.Snapshot.Tools {
			fmt.Printf("  tool    %s\n", tool.Name)
		}
		for _, prompt := range entry.Snapshot.Prompts {
			fmt.Printf("  prompt  %s\n", prompt.Name)
		}
	}
	return nil
}

func shortETag(etag string) string {
	if len(etag) > 12 {
		return etag[:12]
	}
	return etag
}
