package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"elric-go/internal/job"
	"elric-go/internal/trigger"

	"github.com/spf13/cobra"
)

// submitFlags describes a job built on the command line.
type submitFlags struct {
	Server  string
	Token   string
	Key     string
	ID      string
	Func    string
	Args    []string
	Every   time.Duration
	Cron    string
	At      string
	Replace bool
}

var submitOpts submitFlags

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Send a job to a running master",
	Long: `Submit builds a job from flags and posts it to a master's /v1/jobs.

Without --every, --cron or --at the job is enqueued immediately.

Examples:
  elric-master submit --key crawl --func tasks.crawl --arg https://example.com
  elric-master submit --key crawl --func tasks.crawl --every 5m --id crawl-home
  elric-master submit --key report --func tasks.report --cron "0 9 * * MON"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := buildJob(submitOpts, time.Now())
		if err != nil {
			return err
		}
		outcome, err := postJob(cmd.Context(), http.DefaultClient, submitOpts, payload)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), outcome)
		return nil
	},
}

func init() {
	f := submitCmd.Flags()
	f.StringVar(&submitOpts.Server, "server", "http://localhost:8080", "master base URL")
	f.StringVar(&submitOpts.Token, "token", "", "bearer token for the master API")
	f.StringVar(&submitOpts.Key, "key", "", "routing key of the destination queue")
	f.StringVar(&submitOpts.ID, "id", "", "job id (random when empty)")
	f.StringVar(&submitOpts.Func, "func", "", "callable reference")
	f.StringArrayVar(&submitOpts.Args, "arg", nil, "positional argument, repeatable")
	f.DurationVar(&submitOpts.Every, "every", 0, "run on a fixed interval")
	f.StringVar(&submitOpts.Cron, "cron", "", "run on a cron expression (UTC)")
	f.StringVar(&submitOpts.At, "at", "", "run once at an RFC 3339 time")
	f.BoolVar(&submitOpts.Replace, "replace", false, "replace a stored job with the same id")
	_ = submitCmd.MarkFlagRequired("key")
	_ = submitCmd.MarkFlagRequired("func")
	submitCmd.MarkFlagsMutuallyExclusive("every", "cron", "at")
	rootCmd.AddCommand(submitCmd)
}

// buildJob encodes the job described by opts. The client has no registry,
// so the callable accepts any arguments and the master validates it.
func buildJob(opts submitFlags, now time.Time) ([]byte, error) {
	if strings.TrimSpace(opts.Func) == "" {
		return nil, errors.New("callable reference required")
	}
	var (
		tr  trigger.Trigger
		err error
	)
	switch {
	case opts.Every > 0:
		tr, err = trigger.NewInterval(opts.Every, now, time.Time{})
	case opts.Cron != "":
		tr, err = trigger.NewCron(opts.Cron, time.UTC, now, time.Time{})
	case opts.At != "":
		var at time.Time
		at, err = time.Parse(time.RFC3339, opts.At)
		if err != nil {
			return nil, fmt.Errorf("parsing --at: %w", err)
		}
		tr, err = trigger.NewDate(at)
	}
	if err != nil {
		return nil, err
	}

	args := make([]any, len(opts.Args))
	for i, a := range opts.Args {
		args[i] = a
	}
	j, err := job.New(nil, job.Options{
		ID: opts.ID,
		Callable: &job.Callable{
			Ref:       opts.Func,
			Signature: job.Signature{VarArgs: true, VarKwargs: true},
		},
		Args:    args,
		Trigger: tr,
	})
	if err != nil {
		return nil, err
	}
	return job.Encode(j)
}

// postJob sends payload to the master and returns the reported outcome.
func postJob(ctx context.Context, client *http.Client, opts submitFlags, payload []byte) (string, error) {
	body, err := json.Marshal(map[string]any{
		"serialized_job": payload,
		"job_key":        opts.Key,
		"job_id":         opts.ID,
		"replace_exist":  opts.Replace,
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(opts.Server, "/") + "/v1/jobs"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach master: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Outcome string `json:"outcome"`
		Error   string `json:"error"`
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("master answered %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", errors.New(out.Error)
	}
	return out.Outcome, nil
}
