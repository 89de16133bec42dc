// Command distortossim is a headless demo of the distortos-go kernel
// running on the goroutine-backed host Port: a handful of threads
// exercise a priority-inheritance mutex, a counting semaphore, a
// message queue, and a periodic software timer, logging as they go,
// while the main thread waits until it is asked to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"distortos/kernel"
	"distortos/mutex"
	"distortos/port"
	"distortos/queue"
	"distortos/semaphore"
	"distortos/thread"
	"distortos/timer"
)

func main() {
	var tickHz int
	var ticks uint64
	var workers int
	var queueCapacity int
	flag.IntVar(&tickHz, "hz", 1000, "Tick rate, in hertz.")
	flag.Uint64Var(&ticks, "ticks", 0, "Stop after N ticks (0 = run until interrupted).")
	flag.IntVar(&workers, "workers", 3, "Number of producer threads feeding the shared queue.")
	flag.IntVar(&queueCapacity, "queue-capacity", 4, "Capacity of the shared message queue.")
	flag.Parse()

	logger := log.New(os.Stdout, "distortossim: ", log.LstdFlags|log.Lmsgprefix)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, logger, tickHz, ticks, workers, queueCapacity); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *log.Logger, tickHz int, ticks uint64, workers, queueCapacity int) error {
	host := port.NewHost(time.Second / time.Duration(tickHz))
	scheduler := kernel.New(host)
	host.Bind(scheduler)

	main := &kernel.TCB{}
	if err := kernel.NewTCB(main, 0, 4096, 10, kernel.SchedulingRoundRobin); err != nil {
		return fmt.Errorf("initialize main thread: %w", err)
	}
	if err := scheduler.Initialize(main); err != nil {
		return fmt.Errorf("initialize scheduler: %w", err)
	}

	mtx := mutex.New(scheduler, mutex.PriorityInheritance, mutex.NonRecursive, 0)
	events := semaphore.New(scheduler, 0, 1<<30)
	messages := queue.NewMessage[string](scheduler, queueCapacity)

	var processed int
	report := timer.New(scheduler, func() {
		logger.Printf("heartbeat: %d messages processed so far", processed)
	})
	report.Start(scheduler.GetTickCount()+uint64(tickHz), uint64(tickHz))

	consumer, err := thread.New(scheduler, 4096, 6, kernel.SchedulingFIFO, func() {
		for {
			if err := events.Wait(); err != nil {
				return
			}
			v, priority, err := messages.Pop()
			if err != nil {
				return
			}
			if err := mtx.Lock(); err != nil {
				return
			}
			processed++
			mtx.Unlock()
			logger.Printf("consumed %q (priority %d), total %d", v, priority, processed)
		}
	})
	if err != nil {
		return fmt.Errorf("create consumer thread: %w", err)
	}
	if err := consumer.Start(); err != nil {
		return fmt.Errorf("start consumer thread: %w", err)
	}
	if err := consumer.Detach(); err != nil {
		return fmt.Errorf("detach consumer thread: %w", err)
	}

	for i := 0; i < workers; i++ {
		i := i
		priority := kernel.Priority(4 + i%3)
		producer, err := thread.New(scheduler, 4096, priority, kernel.SchedulingFIFO, func() {
			n := 0
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				msg := fmt.Sprintf("worker-%d/%d", i, n)
				if err := messages.Push(msg, uint8(priority)); err != nil {
					return
				}
				if err := events.Post(); err != nil {
					return
				}
				n++
				if err := thread.Sleep(scheduler, uint64(tickHz)/5); err != nil {
					return
				}
			}
		})
		if err != nil {
			return fmt.Errorf("create producer thread %d: %w", i, err)
		}
		if err := producer.Start(); err != nil {
			return fmt.Errorf("start producer thread %d: %w", i, err)
		}
		if err := producer.Detach(); err != nil {
			return fmt.Errorf("detach producer thread %d: %w", i, err)
		}
	}

	host.Run(scheduler)
	defer host.Stop()

	if ticks > 0 {
		deadline := time.Duration(ticks) * (time.Second / time.Duration(tickHz))
		select {
		case <-ctx.Done():
		case <-time.After(deadline):
		}
		return nil
	}

	<-ctx.Done()
	logger.Println("shutting down")
	return nil
}
