package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// RecordSubmission mirrors the message format the server's Kafka consumer
// expects
type RecordSubmission struct {
	OpenID       string `json:"open_id"`
	MapType      string `json:"map_type"`
	Score        int64  `json:"score"`
	WavesCleared int64  `json:"waves_cleared"`
	PlayTime     int64  `json:"play_time"`
}

var mapTypes = []string{"forest", "desert", "volcano", "glacier", "swamp"}

var nicknamePrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf",
	"Hawk", "Viper", "Ghost", "Titan", "Frost", "Nova", "Raven", "Spark",
}

func main() {
	apiURL := flag.String("api", "http://localhost:8000", "Base URL of the game API (used to register players)")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "game-records", "Kafka topic")
	totalPlayers := flag.Int("players", 100, "Number of players to register")
	rate := flag.Int("rate", 50, "Record submissions per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	// Register players through the login endpoint so record submissions
	// resolve to existing users
	fmt.Printf("Registering %d players via %s\n", *totalPlayers, *apiURL)
	openIDs := make([]string, 0, *totalPlayers)
	client := &http.Client{Timeout: 5 * time.Second}
	for i := 0; i < *totalPlayers; i++ {
		openID := uuid.New().String()
		nickname := fmt.Sprintf("%s%d", nicknamePrefixes[i%len(nicknamePrefixes)], i/len(nicknamePrefixes)+1)
		body, _ := json.Marshal(map[string]string{
			"open_id":  openID,
			"nickname": nickname,
		})
		resp, err := client.Post(*apiURL+"/api/user/login", "application/json", bytes.NewReader(body))
		if err != nil {
			log.Fatalf("failed to register player: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			log.Fatalf("login returned status %d", resp.StatusCode)
		}
		openIDs = append(openIDs, openID)
	}
	fmt.Printf("Registered %d players\n\n", len(openIDs))

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	sendSubmission := func(sub RecordSubmission) {
		data, err := json.Marshal(sub)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(sub.OpenID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
		}
	}

	fmt.Printf("Publishing %d record submissions per second to %s\n", *rate, *topic)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	interval := time.Second / time.Duration(*rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nDone. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\nDuration reached, shutting down...")
				shutdown()
				return
			}

			playTime := int64(rand.Intn(540) + 60)
			sub := RecordSubmission{
				OpenID:       openIDs[rand.Intn(len(openIDs))],
				MapType:      mapTypes[rand.Intn(len(mapTypes))],
				Score:        int64(rand.Intn(9000) + 1000),
				WavesCleared: int64(rand.Intn(30)),
				PlayTime:     playTime,
			}
			sendSubmission(sub)

		case <-statsTicker.C:
			fmt.Printf("[%s] Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
