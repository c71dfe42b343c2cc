package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/ttyv/internal/timestamp"
)

type sectionJSON struct {
	Title     string  `json:"title"`
	Summary   string  `json:"summary"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

var processCmd = &cobra.Command{
	Use:   "process <youtube-url>",
	Short: "Ingest a YouTube video so it can be queried",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Processing %s", args[0])
		resp, err := client.post(cmd.Context(), "/process_video", map[string]string{"youtube_url": args[0]})
		if err != nil {
			return err
		}

		var result struct {
			VideoID          string        `json:"video_id"`
			Sections         []sectionJSON `json:"sections"`
			TranscriptLength int           `json:"transcript_length"`
			ChunksCreated    int           `json:"chunks_created"`
			ProcessingMode   string        `json:"processing_mode"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Processed %s (%s mode, %d chunks)", result.VideoID, result.ProcessingMode, result.ChunksCreated)
		for _, s := range result.Sections {
			printStatus(timestamp.Format(int(s.StartTime)), "%s", s.Title)
		}
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <video-id> <question...>",
	Short: "Ask a question about a processed video",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		question := strings.Join(args[1:], " ")
		resp, err := client.post(cmd.Context(), "/chat", map[string]string{
			"video_id": args[0],
			"question": question,
		})
		if err != nil {
			return err
		}

		var result struct {
			Answer             string `json:"answer"`
			RelevantTimestamps []struct {
				Timestamp float64 `json:"timestamp"`
				Text      string  `json:"text"`
			} `json:"relevant_timestamps"`
			SourcesCount int `json:"sources_count"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, result.Answer)
		if len(result.RelevantTimestamps) > 0 {
			fmt.Fprintln(os.Stderr)
			printStep("Sources (%d):", result.SourcesCount)
			for _, ts := range result.RelevantTimestamps {
				printStatus(timestamp.Format(int(ts.Timestamp)), "%s", ts.Text)
			}
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <video-id> <visual-description...>",
	Short: "Find moments matching a visual description",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		query := strings.Join(args[1:], " ")
		resp, err := client.post(cmd.Context(), "/visual_search", map[string]string{
			"video_id": args[0],
			"query":    query,
		})
		if err != nil {
			return err
		}

		var result struct {
			Matches []struct {
				Timestamp    float64 `json:"timestamp"`
				EndTimestamp float64 `json:"end_timestamp"`
				Description  string  `json:"description"`
				Confidence   string  `json:"confidence"`
			} `json:"matches"`
			TotalMatches int `json:"total_matches"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.TotalMatches == 0 {
			printWarning("No matches for %q", query)
			return nil
		}
		printSuccess("%d matches", result.TotalMatches)
		for _, m := range result.Matches {
			span := timestamp.Format(int(m.Timestamp)) + "-" + timestamp.Format(int(m.EndTimestamp))
			printStatus(span, "%s (%s)", m.Description, m.Confidence)
		}
		return nil
	},
}

var videosCmd = &cobra.Command{
	Use:   "videos",
	Short: "List processed videos",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/videos")
		if err != nil {
			return err
		}

		var videos []struct {
			VideoID        string `json:"video_id"`
			YouTubeURL     string `json:"youtube_url"`
			ProcessingMode string `json:"processing_mode"`
		}
		if err := decodeJSON(resp, &videos); err != nil {
			return err
		}

		if len(videos) == 0 {
			printWarning("No videos processed yet")
			return nil
		}
		for _, v := range videos {
			printStatus(v.VideoID, "%s (%s)", v.YouTubeURL, v.ProcessingMode)
		}
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the embedding cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show embedding cache hit/miss statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/cache/stats")
		if err != nil {
			return err
		}

		var stats map[string]int
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		printStatus("Size", "%d / %d", stats["size"], stats["capacity"])
		printStatus("Hits", "%d", stats["hits"])
		printStatus("Misses", "%d", stats["misses"])
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the embedding cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/cache/clear", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Cache cleared")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
