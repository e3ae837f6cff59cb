package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tenant-rag/internal/pipeline/ingest"
	"tenant-rag/internal/splitter"
	"tenant-rag/pkg/config"
)

const version = "tenant-rag cli 0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stdout)
		return 0
	}
	c := newClient(apiBaseURL(), os.Getenv("RAG_API_KEY"))
	cmd, rest := args[0], args[1:]

	var (
		out interface{}
		err error
	)
	switch cmd {
	case "version":
		fmt.Fprintln(stdout, version)
		return 0
	case "config":
		return runConfig(stdout, stderr)
	case "health":
		out, err = c.health()
	case "chunk":
		if len(rest) < 1 {
			fmt.Fprintln(stderr, "Usage: ragctl chunk <file> [max_tokens]")
			return 1
		}
		maxTokens := 400
		if len(rest) > 1 {
			if maxTokens, err = strconv.Atoi(rest[1]); err != nil || maxTokens <= 0 {
				fmt.Fprintln(stderr, "max_tokens must be a positive integer")
				return 1
			}
		}
		return runChunk(rest[0], maxTokens, stdout, stderr)
	case "upload":
		if len(rest) < 1 {
			fmt.Fprintln(stderr, "Usage: ragctl upload <file>")
			return 1
		}
		out, err = c.upload(rest[0])
	case "documents":
		if len(rest) > 0 {
			out, err = c.getDocument(rest[0])
		} else {
			out, err = c.listDocuments()
		}
	case "delete":
		if len(rest) < 1 {
			fmt.Fprintln(stderr, "Usage: ragctl delete <document_id>")
			return 1
		}
		out, err = c.deleteDocument(rest[0])
	case "chat":
		if len(rest) > 0 {
			return printReply(c, strings.Join(rest, " "), stdout, stderr)
		}
		return runChat(c, stdin, stdout, stderr)
	case "usage":
		days := 30
		if len(rest) > 0 {
			if days, err = strconv.Atoi(rest[0]); err != nil || days <= 0 {
				fmt.Fprintln(stderr, "Usage: ragctl usage [days]")
				return 1
			}
		}
		out, err = c.usage(days)
	case "quota":
		out, err = c.quota()
	case "admin":
		return runAdmin(c, rest, stdout, stderr)
	default:
		printUsage(stderr)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		return 1
	}
	fmt.Fprintln(stdout, prettyJSON(out))
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: ragctl <command> [args]")
	fmt.Fprintln(w, "  version                    - 显示版本")
	fmt.Fprintln(w, "  config                     - 显示配置概要")
	fmt.Fprintln(w, "  health                     - 健康检查")
	fmt.Fprintln(w, "  chunk <file> [max_tokens]  - 本地预览切片结果（不上传）")
	fmt.Fprintln(w, "  upload <file>              - 上传文档（需 RAG_API_KEY）")
	fmt.Fprintln(w, "  documents [id]             - 列出文档或查看单个文档")
	fmt.Fprintln(w, "  delete <id>                - 删除文档及其切片")
	fmt.Fprintln(w, "  chat [message]             - 提问；不带参数时进入交互模式")
	fmt.Fprintln(w, "  usage [days]               - 最近 N 天用量（默认 30）")
	fmt.Fprintln(w, "  quota                      - 当前配额窗口用量")
	fmt.Fprintln(w, "  admin reset-quota <tenant> - 重置租户配额（需 RAG_ADMIN_USER/RAG_ADMIN_PASSWORD）")
	fmt.Fprintln(w, "  admin wipe-chunks <tenant> - 删除租户全部切片")
	fmt.Fprintln(w, "环境变量: RAG_API_URL（默认 http://localhost:8080）, RAG_API_KEY")
}

func runConfig(stdout, stderr io.Writer) int {
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		fmt.Fprintf(stderr, "加载配置失败: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "api.port=%d\n", cfg.API.Port)
	fmt.Fprintf(stdout, "storage.vector=%s (dim %d)\n", cfg.Storage.Vector.Type, cfg.Storage.Vector.Dimension)
	fmt.Fprintf(stdout, "storage.queue=%s\n", cfg.Storage.Queue.Type)
	fmt.Fprintf(stdout, "quota=%s\n", cfg.Quota.Type)
	fmt.Fprintf(stdout, "model.llm=%s model.embedding=%s\n", cfg.Model.Defaults.LLM, cfg.Model.Defaults.Embedding)
	return 0
}

// runChunk 用与 Worker 相同的抽取与切片逻辑预览文件
func runChunk(path string, maxTokens int, stdout, stderr io.Writer) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "chunk: %v\n", err)
		return 1
	}
	mimeType := ingest.MimeText
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		mimeType = ingest.MimePDF
	case ".docx":
		mimeType = ingest.MimeDOCX
	case ".doc":
		mimeType = ingest.MimeMSWord
	}
	text, err := ingest.NewRegistry().Extract(mimeType, data)
	if err != nil {
		fmt.Fprintf(stderr, "chunk: %v\n", err)
		return 1
	}
	pieces := splitter.Chunk(splitter.Normalize(text), maxTokens)
	for i, p := range pieces {
		fmt.Fprintf(stdout, "--- chunk %d (%d chars) ---\n%s\n", i, len(p), p)
	}
	fmt.Fprintf(stdout, "%d chunks\n", len(pieces))
	return 0
}

func printReply(c *client, message string, stdout, stderr io.Writer) int {
	reply, err := c.chat(message, 0)
	if err != nil {
		fmt.Fprintf(stderr, "chat: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, reply.Response)
	line := fmt.Sprintf("[confidence %.2f, tokens %d", reply.Confidence, reply.TokensUsed)
	if reply.Quota != nil {
		line += fmt.Sprintf(", messages %d/%d", reply.Quota.MessagesUsed, reply.Quota.MessagesLimit)
	}
	fmt.Fprintln(stdout, line+"]")
	return 0
}

func runChat(c *client, stdin io.Reader, stdout, stderr io.Writer) int {
	fmt.Fprintln(stdout, "输入问题，空行或 exit 退出")
	sc := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "> ")
		if !sc.Scan() {
			return 0
		}
		msg := strings.TrimSpace(sc.Text())
		if msg == "" || msg == "exit" || msg == "quit" {
			return 0
		}
		if code := printReply(c, msg, stdout, stderr); code != 0 {
			return code
		}
	}
}

func runAdmin(c *client, args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(stderr, "Usage: ragctl admin <reset-quota|wipe-chunks> <tenant_id>")
		return 1
	}
	if err := c.adminLogin(os.Getenv("RAG_ADMIN_USER"), os.Getenv("RAG_ADMIN_PASSWORD")); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	var (
		out interface{}
		err error
	)
	switch args[0] {
	case "reset-quota":
		out, err = c.resetQuota(args[1])
	case "wipe-chunks":
		out, err = c.wipeChunks(args[1])
	default:
		fmt.Fprintf(stderr, "unknown admin command %q\n", args[0])
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "admin %s: %v\n", args[0], err)
		return 1
	}
	fmt.Fprintln(stdout, prettyJSON(out))
	return 0
}
