/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"ewallet-webhook-go/internal/common"
	"ewallet-webhook-go/internal/config"
	"ewallet-webhook-go/internal/models"

	"go.uber.org/zap"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: deadletters list [--all] [--limit N]")
	fmt.Fprintln(os.Stderr, "       deadletters replay (--id ID | --pending)")
}

func printDeadLetters(letters []models.DeadLetter) {
	for i, letter := range letters {
		kind := "transient"
		if letter.Terminal {
			kind = "terminal"
		}
		replayed := "-"
		if !letter.ReplayedAt.IsZero() {
			replayed = letter.ReplayedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%s %-15s %-26s %-15s %-9s attempts=%d replayed=%s\n",
			common.BoxPrefix(i == len(letters)-1),
			common.ShortId(letter.Id),
			letter.EventType,
			common.ShortId(letter.Reference),
			kind,
			letter.Attempts,
			replayed)
		fmt.Printf("   error: %s\n", letter.Error)
	}
}

// replay re-dispatches a dead letter and marks it replayed once the ledger accepts it
func replay(ctx context.Context, services *common.Services, letter models.DeadLetter) error {
	outcome, err := services.Dispatcher.Dispatch(ctx, letter.Payload)
	if err != nil {
		return fmt.Errorf("replay of %s failed: %w", letter.Id, err)
	}
	if err := services.DbService.MarkDeadLetterReplayed(ctx, letter.Id); err != nil {
		return err
	}
	fmt.Printf("✓ %s %s: %s\n", letter.EventType, letter.Reference, outcome.Status)
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	allFlag := cmd.Bool("all", false, "Include replayed dead letters")
	limitFlag := cmd.Int("limit", 50, "Maximum number of dead letters to list")
	idFlag := cmd.String("id", "", "Dead letter id to replay")
	pendingFlag := cmd.Bool("pending", false, "Replay every dead letter not yet replayed")
	if err := cmd.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	switch os.Args[1] {
	case "list":
		letters, err := services.DbService.ListDeadLetters(ctx, *limitFlag, *allFlag)
		if err != nil {
			zap.L().Fatal("Failed to list dead letters", zap.Error(err))
		}
		common.PrintHeader(fmt.Sprintf("DEAD LETTERS (%d)", len(letters)), common.WideWidth)
		printDeadLetters(letters)
		common.PrintSeparator("=", common.WideWidth)

	case "replay":
		var letters []models.DeadLetter
		switch {
		case *idFlag != "":
			letter, err := services.DbService.GetDeadLetter(ctx, *idFlag)
			if err != nil {
				zap.L().Fatal("Failed to load dead letter", zap.String("id", *idFlag), zap.Error(err))
			}
			letters = append(letters, *letter)
		case *pendingFlag:
			letters, err = services.DbService.ListDeadLetters(ctx, *limitFlag, false)
			if err != nil {
				zap.L().Fatal("Failed to list dead letters", zap.Error(err))
			}
		default:
			usage()
			return
		}

		failed := 0
		for _, letter := range letters {
			if err := replay(ctx, services, letter); err != nil {
				failed++
				zap.L().Error("Replay failed",
					zap.String("id", letter.Id),
					zap.String("reference", letter.Reference),
					zap.Error(err))
			}
		}
		common.PrintFooter(fmt.Sprintf("REPLAYED %d of %d dead letters", len(letters)-failed, len(letters)), common.WideWidth)

	default:
		usage()
	}
}
