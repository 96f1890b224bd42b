package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/hongjun500/chat-relay/internal/client"
	"github.com/hongjun500/chat-relay/pkg/logger"
)

func main() {
	var (
		addr   = flag.String("addr", "127.0.0.1:3234", "relay address")
		name   = flag.String("name", fmt.Sprintf("Client%d", os.Getpid()), "display name")
		offset = flag.String("offset", "\t\t", "indent for messages sent by this client")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	c, err := client.Dial(ctx, *addr, *name)
	cancel()
	if err != nil {
		fmt.Println("Connection Failed!")
		logger.L().Fatal("dial_error", zap.String("addr", *addr), zap.Error(err))
	}
	fmt.Printf("Connection Successful! %s @ %s\n", c.Name(), c.LocalAddr())

	go func() {
		err := c.Receive(func(m client.Message) {
			if m.SentByMe {
				fmt.Println(*offset + m.Text)
				return
			}
			fmt.Println(m.Text)
		})
		if err != nil {
			logger.L().Warn("receive_error", zap.Error(err))
		}
		fmt.Println("Could Not Receive from Server...")
		os.Exit(0)
	}()

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if err := c.Send(line); err != nil {
			fmt.Println("Lost Connection to Server!")
			break
		}
	}
	_ = c.Close()
}
