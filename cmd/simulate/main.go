package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/go-audio/wav"
	"github.com/joho/godotenv"
	ws "nhooyr.io/websocket"
)

const (
	sampleRate   = 16000
	frameSamples = sampleRate / 10 // 100ms
)

func main() {
	_ = godotenv.Load()

	base := flag.String("url", envOr("SIMULATE_URL", "ws://localhost:8000"), "server websocket base URL")
	tenantID := flag.String("tenant", "tiryaq", "tenant id")
	userID := flag.String("user", "sim-"+time.Now().Format("150405"), "user id")
	wavPath := flag.String("wav", "", "16kHz mono PCM16 WAV to send as the utterance (default: synthetic tone)")
	speech := flag.Duration("speech", 1500*time.Millisecond, "synthetic speech length")
	silence := flag.Duration("silence", 2*time.Second, "trailing silence after each utterance")
	amp := flag.Int("amp", 3000, "synthetic speech amplitude")
	turns := flag.Int("turns", 1, "utterances to send")
	ping := flag.Duration("ping", 10*time.Second, "keepalive interval")
	timeout := flag.Duration("timeout", 60*time.Second, "overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	utterance := toneFrames(*speech, int16(*amp))
	if *wavPath != "" {
		var err error
		if utterance, err = wavFrames(*wavPath); err != nil {
			log.Fatalf("read wav: %v", err)
		}
	}

	url := fmt.Sprintf("%s/ws/session/%s/%s", *base, *tenantID, *userID)
	c, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", url, err)
	}
	defer c.Close(ws.StatusNormalClosure, "done")

	fmt.Printf("=== Voice Session Simulation ===\n")
	fmt.Printf("URL: %s\n", url)
	fmt.Printf("Turns: %d, utterance frames: %d\n\n", *turns, len(utterance))

	// Receiver: prints events and reports playback as soon as audio ends.
	turnDone := make(chan struct{}, 1)
	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		var audioBytes int
		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				if status := ws.CloseStatus(err); status != -1 {
					fmt.Printf("\n[ws] closed: %d %v\n", status, err)
				} else if ctx.Err() == nil {
					fmt.Printf("\n[ws] read error: %v\n", err)
				}
				return
			}
			if typ == ws.MessageBinary {
				audioBytes += len(data)
				fmt.Printf(".")
				continue
			}
			var msg struct {
				Type    string `json:"type"`
				State   string `json:"state"`
				Content string `json:"content"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				fmt.Printf("\n[ws] bad message: %s\n", data)
				continue
			}
			switch msg.Type {
			case "state":
				fmt.Printf("\n[state] %s\n", msg.State)
				if msg.State == "listening" {
					notify(turnDone)
				}
			case "user_text":
				fmt.Printf("[user] %s\n", msg.Content)
			case "text":
				fmt.Printf("[assistant] %s\n", msg.Content)
			case "audio_start":
				audioBytes = 0
				fmt.Printf("[audio] ")
			case "audio_end":
				fmt.Printf("\n[audio] %d bytes (%.1fs)\n", audioBytes, float64(audioBytes)/2/sampleRate)
				if err := c.Write(ctx, ws.MessageText, []byte(`{"type":"playback_done"}`)); err != nil {
					fmt.Printf("[ws] playback_done: %v\n", err)
				}
			case "pong":
				fmt.Printf("[pong]\n")
			default:
				fmt.Printf("[%s] %s\n", msg.Type, data)
			}
		}
	}()

	go func() {
		t := time.NewTicker(*ping)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_ = c.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`))
			}
		}
	}()

	quiet := toneFrames(*silence, 0)
	for i := 1; i <= *turns; i++ {
		fmt.Printf("[%d] sending utterance...\n", i)
		if err := send(ctx, c, utterance); err != nil {
			log.Fatalf("send: %v", err)
		}
		if err := send(ctx, c, quiet); err != nil {
			log.Fatalf("send: %v", err)
		}
		select {
		case <-turnDone:
		case <-recvDone:
			os.Exit(1)
		case <-ctx.Done():
			log.Fatalf("timed out waiting for turn %d", i)
		}
	}
	fmt.Println("\n=== done ===")
}

// send writes frames in real time, one every 100ms.
func send(ctx context.Context, c *ws.Conn, frames [][]byte) error {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for _, f := range frames {
		if err := c.Write(ctx, ws.MessageBinary, f); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// toneFrames renders a 440Hz sine of the given length as 100ms PCM16 frames.
func toneFrames(d time.Duration, amplitude int16) [][]byte {
	n := int(d / (100 * time.Millisecond))
	frames := make([][]byte, n)
	for i := range frames {
		b := make([]byte, frameSamples*2)
		for j := 0; j < frameSamples; j++ {
			s := float64(i*frameSamples + j)
			v := int16(float64(amplitude) * math.Sin(2*math.Pi*440*s/sampleRate))
			binary.LittleEndian.PutUint16(b[2*j:], uint16(v))
		}
		frames[i] = b
	}
	return frames
}

func wavFrames(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if buf.Format.SampleRate != sampleRate || buf.Format.NumChannels != 1 || dec.BitDepth != 16 {
		return nil, fmt.Errorf("%s: want %dHz mono 16-bit, got %dHz %dch %d-bit",
			path, sampleRate, buf.Format.SampleRate, buf.Format.NumChannels, dec.BitDepth)
	}

	var frames [][]byte
	for start := 0; start < len(buf.Data); start += frameSamples {
		end := min(start+frameSamples, len(buf.Data))
		b := make([]byte, frameSamples*2)
		for j, v := range buf.Data[start:end] {
			binary.LittleEndian.PutUint16(b[2*j:], uint16(int16(v)))
		}
		frames = append(frames, b)
	}
	return frames, nil
}

func notify(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
