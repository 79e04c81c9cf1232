// Package loadtest runs ciload scenarios from Go code.
//
// The command line covers the built-in profiles. Embed this package when a
// run needs custom profiles or has to be driven from another program.
//
// # Quick Start
//
//	profiles, _ := loadtest.BuiltinProfiles()
//	cfg := &loadtest.Config{
//	    Name: "nightly",
//	    Scenarios: map[string]*loadtest.ScenarioConfig{
//	        "hooks": {Profile: "webhook", Users: 50, SpawnRate: 10, Duration: "10m"},
//	    },
//	}
//	runner, _ := loadtest.NewRunner(cfg, profiles)
//	result, _ := runner.Run(context.Background())
//	fmt.Printf("Passed: %v\n", result.Passed)
//
// # Custom Profiles
//
// A profile names a user, its wait time, and one task:
//
//	type statusUser struct{}
//
//	func (statusUser) Name() string                   { return "status" }
//	func (statusUser) WaitTime() loadtest.WaitTime    { return loadtest.Between(time.Second, 3*time.Second) }
//	func (statusUser) DefaultHost() string            { return "http://localhost:8080" }
//	func (statusUser) Task(ctx context.Context, vu *loadtest.VirtualUser) error {
//	    _, err := vu.Do(ctx, loadtest.Request{Name: "status", Method: "GET", Path: "/api/json"})
//	    return err
//	}
//
// Request failures are recorded by VirtualUser.Do; a task only returns an
// error when it could not run at all.
package loadtest
