package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/clinic-interpreter/backend/internal/config"
	model "github.com/zhouzirui/clinic-interpreter/backend/internal/model/conversation"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/model/phrasebook"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/service/ai"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/service/summary"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/service/translation"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: translate 或 summary")
	text := flag.String("text", "", "translate 模式的输入文本")
	from := flag.String("from", cfg.Interpreter.DoctorLanguage, "源语言")
	to := flag.String("to", cfg.Interpreter.PatientLanguage, "目标语言")
	transcriptPath := flag.String("transcript", "", "summary 模式的对话文件，每行形如 \"doctor: text\"")
	offline := flag.Bool("offline", false, "不调用模型，只使用本地兜底逻辑")
	timeout := flag.Duration("timeout", cfg.Gateway.Timeout, "单次调用超时时间")

	flag.Parse()

	if *mode != "translate" && *mode != "summary" {
		flag.Usage()
		log.Fatal("请通过 -mode=translate 或 -mode=summary 指定测试模式")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+5*time.Second)
	defer cancel()

	var completer ai.Completer
	if !*offline {
		completer, err = ai.NewCompleter(ctx, cfg.AI)
		if err != nil {
			log.Fatalf("模型初始化失败 (可使用 -offline): %v", err)
		}
		log.Printf("使用模型后端: %s", completer.Name())
	}

	switch *mode {
	case "translate":
		runTranslate(ctx, completer, *text, *from, *to, *timeout)
	case "summary":
		runSummary(ctx, completer, *transcriptPath, *timeout)
	}
}

func runTranslate(ctx context.Context, completer ai.Completer, text, from, to string, timeout time.Duration) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("translate 模式需要通过 -text 提供待翻译文本")
	}

	fallback := translation.NewFallback(phrasebook.NewMemoryStore(phrasebook.Seed()), nil)
	var gateway translation.Gateway = fallback
	if completer != nil {
		gateway = translation.NewLive(completer, fallback, timeout, nil)
	}

	start := time.Now()
	out := gateway.Translate(ctx, text, from, to)
	log.Printf("翻译完成 (%s -> %s, %s): %q", from, to, time.Since(start).Round(time.Millisecond), out)
}

func runSummary(ctx context.Context, completer ai.Completer, path string, timeout time.Duration) {
	if path == "" {
		log.Fatal("summary 模式需要通过 -transcript 指定对话文件")
	}

	history, err := readTranscript(path)
	if err != nil {
		log.Fatalf("读取对话文件失败: %v", err)
	}

	var gateway summary.Gateway = summary.NewFallback(nil)
	if completer != nil {
		gateway = summary.NewLive(completer, timeout, nil)
	}

	result := gateway.Summarize(ctx, history)
	log.Printf("摘要: %s", result.Summary)
	for _, action := range result.Actions {
		log.Printf("  - %s: %s", action.Type, action.Details)
	}
}

func readTranscript(path string) ([]model.Utterance, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var history []model.Utterance
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		role, text, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		r := model.Role(strings.ToLower(strings.TrimSpace(role)))
		if !r.Speaker() {
			continue
		}
		history = append(history, model.Utterance{Role: r, Text: strings.TrimSpace(text)})
	}
	return history, scanner.Err()
}
