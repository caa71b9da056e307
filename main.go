package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sqlportal/grader/config"
	"github.com/sqlportal/grader/grader"
)

func main() {
	cfg := config.Config{}
	if err := cfg.LoadDefault(); err != nil {
		log.Fatal(err)
	}

	wg := new(sync.WaitGroup)

	s := grader.NewService(wg)
	setupSigtermHandler(s)
	if err := s.Start(cfg); err != nil {
		log.Fatal(err)
	}

	wg.Wait()
}

func setupSigtermHandler(s *grader.Service) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Print("\n")
		s.Stop()
	}()
}
