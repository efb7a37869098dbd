package genflow_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/petrijr/genflow"
)

// Example_dispatcher demonstrates defining a flow on an in-memory
// dispatcher and running it synchronously.
func Example_dispatcher() {
	ctx := context.Background()

	d := genflow.NewInMemoryDispatcher()

	flow, err := d.DefineFlow(genflow.FlowConfig{Name: "greeting"},
		func(ctx context.Context, input any) (any, error) {
			msg, err := genflow.RunStep(ctx, "sayHello", func(ctx context.Context) (any, error) {
				return sayHello(input)
			})
			if err != nil {
				return nil, err
			}
			return genflow.RunStep(ctx, "decorateMessage", func(ctx context.Context) (any, error) {
				return decorateMessage(msg)
			})
		})
	if err != nil {
		log.Fatal(err)
	}

	op, err := flow.Run(ctx, "Gopher")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("flow %q finished done=%v with output %v\n",
		op.Name, op.Done, op.Result.Response)
}

// Example_pipeline demonstrates the stage builder, which turns an ordered
// list of functions into a flow of memoized steps.
func Example_pipeline() {
	ctx := context.Background()

	d := genflow.NewInMemoryDispatcher()

	flow := genflow.NewPipeline("greeting").
		Stage("sayHello", func(ctx context.Context, input any) (any, error) {
			return sayHello(input)
		}).
		Stage("decorateMessage", func(ctx context.Context, input any) (any, error) {
			return decorateMessage(input)
		}).
		MustDefine(d, genflow.FlowConfig{})

	op, err := flow.Run(ctx, "Gopher")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(op.Result.Response)

	// Output:
	// *** hello, Gopher ***
}

// Example_localRunner demonstrates running flows asynchronously through the
// in-process queue and worker.
func Example_localRunner() {
	ctx := context.Background()

	runner := genflow.NewLocalRunner()

	_, err := runner.Dispatcher.DefineFlow(genflow.FlowConfig{Name: "greeting"},
		func(ctx context.Context, input any) (any, error) {
			return sayHello(input)
		})
	if err != nil {
		log.Fatal(err)
	}

	if err := runner.StartWorkers(ctx, 1); err != nil {
		log.Fatal(err)
	}
	defer runner.Stop()

	if err := runner.StartAsync(ctx, "greeting", "Gopher"); err != nil {
		log.Fatal(err)
	}

	// In a real application you'd poll State or ListStates; for example
	// purposes, just give the worker a moment to run.
	time.Sleep(200 * time.Millisecond)
}

// Example_waitForEvent demonstrates a flow that suspends until external
// input arrives and is resumed through the dispatcher.
func Example_waitForEvent() {
	ctx := context.Background()

	d := genflow.NewInMemoryDispatcher()

	flow, err := d.DefineFlow(genflow.FlowConfig{Name: "expenseReport"},
		func(ctx context.Context, input any) (any, error) {
			approved, err := genflow.WaitForEvent(ctx, "approval",
				genflow.MustSchema(`{"type":"boolean"}`))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("approved=%v", approved), nil
		})
	if err != nil {
		log.Fatal(err)
	}

	op, err := flow.Run(ctx, nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("blocked on:", op.BlockedOn.Name)

	op, err = d.Resume(ctx, op.Name, true)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(op.Result.Response)

	// Output:
	// blocked on: approval
	// approved=true
}

func sayHello(input any) (any, error) {
	name, ok := input.(string)
	if !ok {
		return nil, fmt.Errorf("sayHello: expected string input, got %T", input)
	}
	return fmt.Sprintf("hello, %s", name), nil
}

func decorateMessage(input any) (any, error) {
	msg, ok := input.(string)
	if !ok {
		return nil, fmt.Errorf("decorateMessage: expected string input, got %T", input)
	}
	return fmt.Sprintf("*** %s ***", msg), nil
}
