package main

import (
	"net/http"

	"github.com/spf13/cobra"
)

func newRoadmapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roadmap",
		Short: "学习路线图管理",
	}
	cmd.AddCommand(newRoadmapCreateCmd())
	cmd.AddCommand(newRoadmapShowCmd())
	cmd.AddCommand(newRoadmapHistoryCmd())
	cmd.AddCommand(newRoadmapCompleteCmd())
	cmd.AddCommand(newRoadmapClearBacklogCmd())
	return cmd
}

func newRoadmapCreateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "create <topic>",
		Short: "生成新路线图（替换当前活跃路线图）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			client := NewAPIClient(cfg)
			body := requestBody{"topic": args[0]}
			if err := body.setChanged(cmd, "duration", "level"); err != nil {
				return err
			}
			resp, err := client.Request(cmd.Context(), http.MethodPost, "/api/roadmap", body)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
	c.Flags().IntP("duration", "d", 0, "天数 (1-60, 默认 7)")
	c.Flags().StringP("level", "l", "", "难度: beginner / intermediate / advanced")
	return c
}

func newRoadmapShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "查看当前活跃路线图",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Get(cmd.Context(), "/api/roadmap")
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
}

func newRoadmapHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "列出全部路线图",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Get(cmd.Context(), "/api/roadmap/history")
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
}

func newRoadmapCompleteCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "complete",
		Short: "完成任务（默认今天）",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			body := requestBody{}
			if err := body.setChanged(cmd, "task", "day", "roadmap-id"); err != nil {
				return err
			}
			resp, err := NewAPIClient(cfg).Request(cmd.Context(), http.MethodPost, "/api/roadmap/complete", body)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
	c.Flags().Int("task", 0, "任务序号（从 0 开始）")
	c.Flags().Int("day", 0, "天序号（默认今天）")
	c.Flags().String("roadmap-id", "", "路线图ID（默认活跃路线图）")
	_ = c.MarkFlagRequired("task")
	return c
}

func newRoadmapClearBacklogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-backlog",
		Short: "清除过去未完成天的积压提示",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			resp, err := NewAPIClient(cfg).Request(cmd.Context(), http.MethodPost, "/api/roadmap/backlog/clear", nil)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), cfg.Output, resp)
		},
	}
}
