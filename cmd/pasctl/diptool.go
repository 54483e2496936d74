package main

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/finnish-heritage-agency/passari-workflow/internal/config"
)

// dipToolCommand is an ad-hoc REST client against the DPRES service's own
// HTTPS API (as opposed to sync-processed-sips' SFTP reconciliation),
// for downloading or searching already-preserved packages directly.
// Grounded on original_source's dip_tool.py; net/http is the teacher's
// own choice of HTTP client (no third-party REST client appears anywhere
// in the example pack).
func dipToolCommand() *cli.Command {
	return &cli.Command{
		Name:  "dip-tool",
		Usage: "search and download preserved packages directly from DPRES",
		Subcommands: []*cli.Command{
			{
				Name:      "download",
				ArgsUsage: "<aip-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output"},
				},
				Action: dipToolDownload,
			},
			{
				Name: "list-pkgs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "page", Value: 1},
					&cli.IntFlag{Name: "limit", Value: 50},
					&cli.StringFlag{Name: "query"},
				},
				Action: dipToolListPkgs,
			},
		},
	}
}

type dipToolClient struct {
	baseURL string
	host    string
	http    *http.Client
}

func newDIPToolClient(cfg config.DPRESConfig) *dipToolClient {
	transport := &http.Transport{}
	if cfg.RESTInsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	host := fmt.Sprintf("https://%s", cfg.Host)
	return &dipToolClient{
		baseURL: fmt.Sprintf("%s/api/2.0/urn:uuid:%s", host, cfg.ContractID),
		host:    host,
		http:    &http.Client{Transport: transport, Timeout: 2 * time.Minute},
	}
}

type dipEnvelope struct {
	Data json.RawMessage `json:"data"`
}

func (d *dipToolClient) getJSON(fullURL string, out any) error {
	resp, err := d.http.Get(fullURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("dpres returned %s for %s", resp.Status, fullURL)
	}
	var env dipEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response from %s: %w", fullURL, err)
	}
	return json.Unmarshal(env.Data, out)
}

func dipToolDownload(c *cli.Context) error {
	aipID := c.Args().First()
	if aipID == "" {
		return fmt.Errorf("aip-id is required")
	}
	cfg, _, err := config.Load()
	if err != nil {
		return err
	}
	client := newDIPToolClient(cfg.DPRES)

	output := c.String("output")
	if output == "" {
		output = aipID + ".zip"
	}

	disseminateURL := fmt.Sprintf("%s/preserved/%s/disseminate?format=zip", client.baseURL, url.PathEscape(aipID))
	resp, err := client.http.Post(disseminateURL, "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("dpres returned %s for %s", resp.Status, disseminateURL)
	}
	var env dipEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response from %s: %w", disseminateURL, err)
	}
	var created struct {
		Disseminated string `json:"disseminated"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		return err
	}

	fmt.Println("DIP scheduled for creation, polling until the DIP is ready.")

	pollURL := client.host + created.Disseminated
	var downloadURL string
	for {
		var status struct {
			Complete bool `json:"complete"`
			Actions  struct {
				Download string `json:"download"`
			} `json:"actions"`
		}
		if err := client.getJSON(pollURL, &status); err != nil {
			return err
		}
		if status.Complete {
			downloadURL = client.host + status.Actions.Download
			break
		}
		fmt.Print(".")
		time.Sleep(3 * time.Second)
	}

	fmt.Println("\nDownloading...")
	dlResp, err := client.http.Get(downloadURL)
	if err != nil {
		return err
	}
	defer dlResp.Body.Close()

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, dlResp.Body); err != nil {
		return err
	}

	fmt.Println("Done!")
	return nil
}

func dipToolListPkgs(c *cli.Context) error {
	cfg, _, err := config.Load()
	if err != nil {
		return err
	}
	client := newDIPToolClient(cfg.DPRES)

	q := url.Values{}
	q.Set("page", fmt.Sprint(c.Int("page")))
	q.Set("limit", fmt.Sprint(c.Int("limit")))
	if query := c.String("query"); query != "" {
		q.Set("q", query)
	}

	var results struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	if err := client.getJSON(client.baseURL+"/search?"+q.Encode(), &results); err != nil {
		return err
	}
	for _, r := range results.Results {
		fmt.Println(r.ID)
	}
	return nil
}
