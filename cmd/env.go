package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lotwatch/internal/activity"
	"github.com/sells-group/lotwatch/internal/agent"
	"github.com/sells-group/lotwatch/internal/config"
	"github.com/sells-group/lotwatch/internal/extract"
	"github.com/sells-group/lotwatch/internal/predict"
	"github.com/sells-group/lotwatch/internal/scrape"
	"github.com/sells-group/lotwatch/internal/store"
)

// appEnv holds the stores, clients and the agent shared by the commands.
type appEnv struct {
	Records   *store.Records
	Results   *store.Results
	Selection *store.Selection
	Activity  *activity.Log
	Chain     *scrape.Chain
	Extractor *extract.Extractor
	Predict   predict.Client
	Submitter *predict.Submitter
	Agent     *agent.Agent
}

// Close stops the agent and releases the selection store.
func (e *appEnv) Close() {
	if e.Agent != nil {
		e.Agent.Close()
	}
	if e.Selection != nil {
		_ = e.Selection.Close()
	}
}

// initApp wires every component from c. Callers should defer env.Close().
func initApp(ctx context.Context, c *config.Config) (*appEnv, error) {
	sel, err := store.OpenSelection(ctx, c.Selection.DSN)
	if err != nil {
		return nil, eris.Wrap(err, "open selection store")
	}

	env := &appEnv{
		Records:   store.NewRecords(),
		Results:   store.NewResults(),
		Selection: sel,
		Activity:  activity.New(c.Activity.MaxLines),
		Extractor: extract.New(extract.WithOrigin(c.Source.Origin)),
	}
	env.Chain = scrape.NewDefaultChain(c.Scrape.Options()).WithObserver(agent.AttemptLogger(env.Activity))
	env.Predict = newPredictClient(c.Predict)
	env.Submitter = predict.NewSubmitter(env.Predict, env.Results)
	env.Agent = agent.New(env.Chain, env.Extractor.Rows, env.Records, env.Submitter, env.Activity, agent.Config{
		AllowedDomain: c.Source.AllowedDomain,
		MinInterval:   c.Agent.MinInterval(),
		AutoAnalyze:   c.Agent.AutoAnalyze,
	})
	return env, nil
}

func newPredictClient(c config.PredictConfig) predict.Client {
	return predict.NewClient(c.BaseURL,
		predict.WithMode(predict.Mode(c.Mode)),
		predict.WithTimeout(time.Duration(c.TimeoutSecs)*time.Second),
		predict.WithMaxAttempts(c.MaxAttempts),
	)
}
