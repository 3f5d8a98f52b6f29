package store

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
)

// rosterFile is the YAML layout of AGENTS_FILE.
type rosterFile struct {
	Agents []struct {
		ID        string            `yaml:"id"`
		Name      string            `yaml:"name"`
		Persona   string            `yaml:"persona"`
		Balance   string            `yaml:"balance"`
		Portfolio map[string]string `yaml:"portfolio"`
	} `yaml:"agents"`
}

// LoadRoster reads agent seed data from a YAML file.
func LoadRoster(path string) ([]models.Agent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file rosterFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}

	agents := make([]models.Agent, 0, len(file.Agents))
	for _, a := range file.Agents {
		if a.ID == "" {
			return nil, fmt.Errorf("roster %s: agent without id", path)
		}
		agent := models.Agent{
			ID:        a.ID,
			Name:      a.Name,
			Persona:   a.Persona,
			Portfolio: make(map[string]decimal.Decimal, len(a.Portfolio)),
		}
		if a.Balance != "" {
			if agent.Balance, err = decimal.NewFromString(a.Balance); err != nil {
				return nil, fmt.Errorf("roster agent %s balance: %w", a.ID, err)
			}
		}
		for token, qty := range a.Portfolio {
			if agent.Portfolio[token], err = decimal.NewFromString(qty); err != nil {
				return nil, fmt.Errorf("roster agent %s holding %s: %w", a.ID, token, err)
			}
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

// SeedAgents inserts agents that do not exist yet. Existing ledger
// state is never overwritten.
func SeedAgents(ctx context.Context, ledger LedgerStore, agents []models.Agent) (int, error) {
	created := 0
	for i := range agents {
		existing, err := ledger.GetAgent(ctx, agents[i].ID)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}
		if err := ledger.UpsertAgent(ctx, &agents[i]); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
