package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tesserae/vectorsync/internal/server"
	"github.com/tesserae/vectorsync/internal/syncer"
)

var version = "dev"

type clientOptions struct {
	addr    string
	tenant  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &clientOptions{}

	root := &cobra.Command{
		Use:           "vsctl",
		Short:         "Client for the vectorsyncd daemon",
		Long:          "vsctl synchronizes documents into the vector store and runs hybrid searches against a running vectorsyncd daemon.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.addr, "addr", "http://localhost:9090", "base URL of the vectorsyncd daemon")
	root.PersistentFlags().StringVar(&opts.tenant, "tenant", "", "tenant identifier (required)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")

	root.AddCommand(newSyncCmd(opts))
	root.AddCommand(newSearchCmd(opts))

	return root
}

func newSyncCmd(opts *clientOptions) *cobra.Command {
	var (
		collectionType string
		file           string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize a batch of documents",
		Long: `Reads a JSON array of documents and syncs them into the given
collection type. Each document needs at least source_id and name:

  [{"source_id": "42", "name": "Return Policy", "content": "..."}]

Use "-" to read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.tenant == "" {
				return fmt.Errorf("--tenant is required")
			}

			docs, err := readDocuments(file)
			if err != nil {
				return err
			}

			var result syncer.Result
			status, err := postJSON(opts, "/api/v1/sync", server.SyncRequest{
				CollectionType: collectionType,
				Documents:      docs,
			}, &result)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("sync failed with status %d", status)
			}

			fmt.Printf("Synced %d/%d documents\n", len(result.SyncedIDs), result.Total)
			for _, e := range result.Errors {
				fmt.Printf("  failed %s: %s\n", e.SourceID, e.Message)
			}
			if !result.Success {
				return fmt.Errorf("%d documents failed", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&collectionType, "type", "", "collection type (required)")
	cmd.Flags().StringVar(&file, "file", "-", "JSON file with documents, - for stdin")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func newSearchCmd(opts *clientOptions) *cobra.Command {
	var (
		collectionType string
		topK           int
		weight         float64
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run a hybrid search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.tenant == "" {
				return fmt.Errorf("--tenant is required")
			}

			req := server.SearchRequest{
				CollectionType: collectionType,
				Query:          args[0],
				TopK:           topK,
			}
			if cmd.Flags().Changed("weight") {
				req.HybridWeight = &weight
			}

			var resp server.SearchResponse
			status, err := postJSON(opts, "/api/v1/search", req, &resp)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("search failed with status %d", status)
			}

			if resp.Count == 0 {
				fmt.Println("No results")
				return nil
			}
			for i, r := range resp.Results {
				name, _ := nestedString(r.Payload, "metadata", "name")
				fmt.Printf("%2d. %-24s score=%.4f (dense=%.4f sparse=%.4f) %s\n",
					i+1, r.ID, r.Score, r.DenseScore, r.SparseScore, name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&collectionType, "type", "", "collection type (required)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of results (0 uses the server default)")
	cmd.Flags().Float64Var(&weight, "weight", 0.7, "dense weight in [0,1]; 1 pure dense, 0 pure sparse")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func readDocuments(file string) ([]server.SyncDocument, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}

	var docs []server.SyncDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parsing documents: %w", err)
	}
	return docs, nil
}

func postJSON(opts *clientOptions, path string, body, dest interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, opts.addr+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(server.TenantHeader, opts.tenant)

	client := &http.Client{Timeout: opts.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling daemon at %s: %w", opts.addr, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode == http.StatusOK && dest != nil {
		if err := json.Unmarshal(respBody, dest); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return resp.StatusCode, nil
}

func nestedString(payload map[string]interface{}, keys ...string) (string, bool) {
	current := payload
	for i, key := range keys {
		if i == len(keys)-1 {
			s, ok := current[key].(string)
			return s, ok
		}
		next, ok := current[key].(map[string]interface{})
		if !ok {
			return "", false
		}
		current = next
	}
	return "", false
}
