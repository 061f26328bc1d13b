package main

import (
	"bytes"
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/z-tavern/client/internal/audio"
	"github.com/zhouzirui/z-tavern/client/internal/config"
	speechmodel "github.com/zhouzirui/z-tavern/client/internal/model/speech"
	"github.com/zhouzirui/z-tavern/client/internal/service/gateway"
	"github.com/zhouzirui/z-tavern/client/internal/service/playback"
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

	mode := flag.String("mode", "health", "测试模式: health, chat 或 process")
	audioPath := flag.String("audio", "", "process 模式的 WAV 文件路径")
	text := flag.String("text", "", "chat 模式的消息文本")
	language := flag.String("lang", "", "语言代码，默认使用配置中的语言")
	outputPath := flag.String("out", "", "把回复音频解码为 S16LE PCM 写入该文件")
	baseURL := flag.String("backend", "", "后端地址，默认使用 BACKEND_URL")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if *baseURL == "" {
		*baseURL = cfg.Backend.BaseURL
	}
	if *language == "" {
		*language = cfg.Backend.Language
	}

	client := gateway.New(*baseURL, gateway.WithTimeout(*timeout))
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "health":
		runHealth(ctx, client)
	case "chat":
		audioURL := runChat(ctx, client, *text, *language)
		fetchAudio(client, audioURL, *outputPath)
	case "process":
		audioURL := runProcess(ctx, client, *audioPath, *language)
		fetchAudio(client, audioURL, *outputPath)
	default:
		flag.Usage()
		log.Fatal("请通过 -mode=health、-mode=chat 或 -mode=process 指定测试模式")
	}
}

func runHealth(ctx context.Context, client *gateway.Client) {
	start := time.Now()
	if !client.HealthCheck(ctx) {
		log.Fatalf("后端不可用: %s", client.BaseURL())
	}
	log.Printf("后端在线: %s (%s)", client.BaseURL(), time.Since(start).Round(time.Millisecond))
}

func runChat(ctx context.Context, client *gateway.Client, text, language string) string {
	if strings.TrimSpace(text) == "" {
		log.Fatal("chat 模式需要通过 -text 提供消息文本")
	}

	log.Printf("发送文本: %q language=%s", text, language)
	resp, err := client.SendText(ctx, text, language)
	if err != nil {
		log.Fatalf("chat 调用失败: %v", err)
	}

	log.Printf("回复: %q audio=%q", resp.Response, resp.AudioURL)
	return resp.AudioURL
}

func runProcess(ctx context.Context, client *gateway.Client, audioPath, language string) string {
	if audioPath == "" {
		log.Fatal("process 模式需要通过 -audio 指定 WAV 文件路径")
	}

	payload, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}

	// 上传前先校验 WAV 头，方便定位录音格式问题
	pcm, format, err := audio.DecodeWAV(bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("音频文件不是有效的 WAV: %v", err)
	}
	seconds := float64(len(pcm)) / float64(format.BytesPerSecond())
	log.Printf("上传音频: %s rate=%d channels=%d duration=%.2fs",
		filepath.Base(audioPath), format.SampleRate, format.Channels, seconds)

	resp, err := client.ProcessAudio(ctx, &speechmodel.ProcessRequest{
		Payload:  payload,
		Filename: filepath.Base(audioPath),
		Language: language,
	})
	if err != nil {
		log.Fatalf("process 调用失败: %v", err)
	}

	log.Printf("识别: %q", resp.TranscribedText)
	log.Printf("回复: %q audio=%q", resp.ResponseText, resp.AudioURL)
	return resp.AudioURL
}

// fetchAudio 下载并解码回复音频；未指定 -out 时跳过
func fetchAudio(client *gateway.Client, audioURL, outputPath string) {
	if audioURL == "" || outputPath == "" {
		return
	}

	url := client.ResolveURL(audioURL)
	player := playback.NewMP3Player(http.DefaultClient, playback.FileSink(outputPath))
	handle, err := player.Open(url)
	if err != nil {
		log.Fatalf("打开音频失败: %v", err)
	}
	defer handle.Close()

	start := time.Now()
	if err := handle.Play(); err != nil {
		log.Fatalf("播放音频失败: %v", err)
	}
	<-handle.Done()
	if err := handle.Err(); err != nil {
		log.Fatalf("解码音频失败: %v", err)
	}

	log.Printf("音频已解码: %s -> %s (%s)", url, outputPath, time.Since(start).Round(time.Millisecond))
}
