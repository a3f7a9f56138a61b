package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chartlylabs/vstate/pkg/delta"
	"github.com/chartlylabs/vstate/pkg/telemetry"
	vstate "github.com/chartlylabs/vstate/sdk/go"
)

func main() {
	var (
		baseURL   = flag.String("base", "http://localhost:8080", "vstate-server base URL")
		requestID = flag.String("request", "", "request id (optional)")
		timeout   = flag.Duration("timeout", 10*time.Second, "request timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rid := *requestID
	if rid == "" {
		rid = "req_basic_client"
	}

	// Show how to create a W3C trace context and propagate it. (If you
	// already have an inbound traceparent, forward it instead.)
	tid, err := telemetry.NewTraceID()
	if err != nil {
		fmt.Fprintln(os.Stderr, "trace id error:", err)
		os.Exit(2)
	}
	sid, err := telemetry.NewSpanID()
	if err != nil {
		fmt.Fprintln(os.Stderr, "span id error:", err)
		os.Exit(2)
	}
	ctx = telemetry.WithSpanContext(ctx, telemetry.SpanContext{TraceID: tid, SpanID: sid, Sampled: false})

	c := vstate.NewClient(*baseURL)

	fmt.Println("== vstate basic client ==")
	fmt.Println("base:", c.BaseURL)
	fmt.Println("request:", rid)

	health, err := c.Health(ctx, vstate.WithRequestID(rid))
	if err != nil {
		fmt.Fprintln(os.Stderr, "health error:", err)
		os.Exit(1)
	}
	fmt.Println("\n/health:")
	fmt.Printf("%+v\n", health)

	stored, err := c.Store(ctx, vstate.StoreRequest{
		State: delta.Object(delta.Member{Key: "example", Value: delta.Bool(true)}),
	}, vstate.WithRequestID(rid))
	if err != nil {
		fmt.Fprintln(os.Stderr, "store error:", err)
		os.Exit(1)
	}
	fmt.Println("\n/store:")
	fmt.Printf("%+v\n", stored)

	recalled, err := c.Recall(ctx, stored.CoordID, vstate.WithRequestID(rid))
	if err != nil {
		fmt.Fprintln(os.Stderr, "recall error:", err)
		os.Exit(1)
	}
	fmt.Println("\n/recall:")
	fmt.Printf("%+v\n", recalled)
}
