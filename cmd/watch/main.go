// Command watch prints the notification frames pushed to one user.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/gorilla/websocket"

	"github.com/mrsingh-rishi/transcriber/types"
)

func main() {
	addr := flag.String("addr", "localhost:3000", "server address")
	user := flag.String("user", "", "username to watch")
	fileURL := flag.String("url", "", "optional file URL to turn into an article")
	author := flag.String("author", "", "author name for -url")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "watch: -user is required")
		os.Exit(2)
	}

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: url.Values{"username": {*user}}.Encode()}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial %s: %v", u.String(), err)
	}
	defer conn.Close()

	if *fileURL != "" {
		frame, _ := json.Marshal(types.ArticleRequest{FileURL: *fileURL, AuthorName: *author})
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Fatalf("send request: %v", err)
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Errorf("read: %v", err)
				}
				return
			}
			text := string(msg)
			fmt.Println(text)
			// a one-shot request ends with its terminal frame
			if *fileURL != "" && !strings.HasPrefix(text, "STATUS: ") {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		<-done
	}
}
