package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/annie25726/perfume-assistant/internal/app"
	"github.com/annie25726/perfume-assistant/internal/pipeline/chat"
	"github.com/annie25726/perfume-assistant/pkg/config"
	"github.com/annie25726/perfume-assistant/pkg/tracing"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "perfume",
	Short:         "香水助理命令行工具",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "打印版本",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "perfume-assistant cli %s\n", version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "打印生效的关键配置",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAPIConfig()
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "api.port=%d\n", cfg.API.Port)
		fmt.Fprintf(out, "model.primary=%s/%s\n", cfg.Model.Primary.Provider, cfg.Model.Primary.Model)
		fmt.Fprintf(out, "model.escalation=%s/%s\n", cfg.Model.Escalation.Provider, cfg.Model.Escalation.Model)
		fmt.Fprintf(out, "session.store=%s\n", cfg.Session.Store)
		fmt.Fprintf(out, "learning.store=%s enable=%t\n", cfg.Learning.Store, cfg.Learning.Enable)
		return nil
	},
}

var chatSession string

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "发送一条消息；不带参数时进入交互模式",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return sendChat(cmd.OutOrStdout(), strings.Join(args, " "))
		}
		return chatLoop(cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func sendChat(out io.Writer, message string) error {
	r, err := postChat(chatSession, message)
	if err != nil {
		return err
	}
	chatSession = r.SessionID
	fmt.Fprintf(out, "[%s] %s\n", r.Engine, r.Reply)
	if len(r.Suggestions) > 0 {
		fmt.Fprintf(out, "  建議：%s\n", strings.Join(r.Suggestions, " / "))
	}
	return nil
}

func chatLoop(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "> ")
		line, err := reader.ReadString('\n')
		msg := strings.TrimSpace(line)
		if msg == "exit" || msg == "quit" {
			return nil
		}
		if msg != "" {
			if err := sendChat(out, msg); err != nil {
				fmt.Fprintf(os.Stderr, "发送失败: %v\n", err)
			}
		}
		if err != nil {
			return nil
		}
	}
}

var askSession string

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "不经过 HTTP，在本进程内装配并回答一条消息",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAPIConfig()
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if t := cfg.Monitoring.Tracing; t.Enable && t.ExportEndpoint != "" {
			tp, err := tracing.InitTracer(ctx, tracing.OTelConfig{
				ServiceName:    t.ServiceName,
				ExportEndpoint: t.ExportEndpoint,
				Insecure:       t.Insecure,
			})
			if err != nil {
				return fmt.Errorf("初始化链路追踪失败: %w", err)
			}
			defer func() { _ = tp.Shutdown(context.Background()) }()
		}

		b, err := app.NewBootstrap(cfg)
		if err != nil {
			return err
		}
		defer b.Close()
		resp, err := b.Responder.Chat(ctx, chat.Request{Message: strings.Join(args, " "), SessionID: askSession})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "[%s] %s\n", resp.Engine, resp.Reply)
		fmt.Fprintf(out, "  session=%s trace=%s\n", resp.SessionID, resp.Trace)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <password>",
	Short: "管理员登录，打印 token（设置到 PERFUME_TOKEN）",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := login(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file...>",
	Short: "上传 .txt/.md/.pdf 到知识库上传目录",
	Args:  cobra.RangeArgs(1, 10),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := uploadFiles(args)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(out))
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "导入上传目录与学习笔记",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := postJSON("/api/rag/ingest")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(out))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "知识库统计",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := getJSON("/api/rag/stats")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(out))
		return nil
	},
}

var learnedCmd = &cobra.Command{
	Use:   "learned",
	Short: "列出学习笔记",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := getJSON("/api/learned")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(out))
		return nil
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "会话 ID，留空由服务端分配")
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "会话 ID，留空新建")
	rootCmd.AddCommand(versionCmd, configCmd, chatCmd, askCmd, loginCmd, uploadCmd, ingestCmd, statsCmd, learnedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
