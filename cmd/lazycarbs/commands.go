package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"lazycarbs-console/internal/calculation"
	"lazycarbs-console/internal/factors"

	"github.com/spf13/cobra"
)

func newLoginCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "login <key>",
		Short: "Store the backend API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, closeFn, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := session.Gate.Submit(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "credential stored")
			return nil
		},
	}
}

func newFactorsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "factors",
		Short: "Show and edit the hourly bolus factors",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the bolus factor of every hour",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, closeFn, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := session.Hourly.Fetch(cmd.Context()); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "HOUR\tFACTOR")
			for _, row := range session.Hourly.Rows() {
				value := "-"
				if row.Baseline != nil {
					value = strconv.FormatFloat(*row.Baseline, 'g', -1, 64)
				}
				fmt.Fprintf(tw, "%02d\t%s\n", row.Hour, value)
			}
			return tw.Flush()
		},
	}

	set := &cobra.Command{
		Use:   "set <hour> <value>",
		Short: "Save the bolus factor of one hour",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hour, err := parseHour(args[0])
			if err != nil {
				return err
			}

			session, closeFn, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := session.Hourly.Fetch(cmd.Context()); err != nil {
				return err
			}
			if err := session.Hourly.SetEdit(hour, args[1]); err != nil {
				return err
			}
			if err := session.Hourly.Save(cmd.Context(), hour); err != nil {
				return err
			}

			saved, _ := session.Hourly.Baseline(hour)
			fmt.Fprintf(cmd.OutOrStdout(), "hour %02d saved: %g\n", hour, saved)
			return nil
		},
	}

	rangeCmd := &cobra.Command{
		Use:   "range <from> <to> <value>",
		Short: "Save one bolus factor for every hour in an inclusive range",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseHour(args[0])
			if err != nil {
				return err
			}
			to, err := parseHour(args[1])
			if err != nil {
				return err
			}
			value, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("value %q: %w", args[2], errInvalidArgument)
			}

			session, closeFn, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := session.Hourly.Fetch(cmd.Context()); err != nil {
				return err
			}

			res, err := session.Ranges.Apply(cmd.Context(), factors.RangeRequest{From: from, To: to, Value: value})
			var rerr *factors.RangeError
			if errors.As(err, &rerr) {
				fmt.Fprintf(cmd.OutOrStdout(), "stopped at hour %02d, committed %v\n", rerr.Key, rerr.Committed)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "hours %02d-%02d saved: %g\n", res.Request.From, res.Request.To, res.Request.Value)
			return nil
		},
	}

	cmd.AddCommand(list, set, rangeCmd)
	return cmd
}

func newCaloriesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calories",
		Short: "Show and edit the global calorie factors",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the calorie factors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, closeFn, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := session.Calories.Load(cmd.Context()); err != nil {
				return err
			}

			w := session.Calories.Working()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "usualBeCalories:            %g\n", w.UsualBeCalories)
			fmt.Fprintf(out, "insulinTypeCalorieCovering: %g\n", w.InsulinTypeCalorieCovering)
			if !session.Calories.Stored() {
				fmt.Fprintln(out, "(fallback values, nothing stored yet)")
			}
			return nil
		},
	}

	var usual, covering string
	set := &cobra.Command{
		Use:   "set",
		Short: "Save the calorie factors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if usual == "" && covering == "" {
				return fmt.Errorf("set --usual-be-calories and/or --covering: %w", errInvalidArgument)
			}

			session, closeFn, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := session.Calories.Load(cmd.Context()); err != nil {
				return err
			}
			if usual != "" {
				if err := session.Calories.SetField(factors.FieldUsualBeCalories, usual); err != nil {
					return err
				}
			}
			if covering != "" {
				if err := session.Calories.SetField(factors.FieldInsulinTypeCalorieCovering, covering); err != nil {
					return err
				}
			}
			if err := session.Calories.Save(cmd.Context()); err != nil {
				return err
			}

			b := session.Calories.Baseline()
			fmt.Fprintf(cmd.OutOrStdout(), "calorie factors saved: usualBeCalories=%g insulinTypeCalorieCovering=%g\n",
				b.UsualBeCalories, b.InsulinTypeCalorieCovering)
			return nil
		},
	}
	set.Flags().StringVar(&usual, "usual-be-calories", "", "Calories per bread unit")
	set.Flags().StringVar(&covering, "covering", "", "Insulin type calorie covering")

	cmd.AddCommand(show, set)
	return cmd
}

func newCalculateCmd(opts *options) *cobra.Command {
	var (
		in       calculation.Input
		usual    float64
		covering float64
	)

	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Run a bolus calculation on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("usual-be-calories") {
				in.UsualBeCalories = &usual
			}
			if cmd.Flags().Changed("covering") {
				in.InsulinTypeCalorieCovering = &covering
			}

			session, closeFn, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := session.Calculator.Load(cmd.Context()); err != nil {
				return err
			}
			res, err := session.Calculator.Submit(cmd.Context(), in)
			if err != nil {
				return err
			}

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, res.Raw, "", "  "); err != nil {
				pretty.Reset()
				pretty.Write(res.Raw)
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}

	f := cmd.Flags()
	f.Float64Var(&in.MealCarbs, "carbs", 0, "Meal carbohydrates in grams")
	f.Float64Var(&in.MealCalories, "calories", 0, "Meal calories")
	f.Float64Var(&in.CurrentHour, "hour", 0, "Hour of the meal")
	f.Float64Var(&in.CurrentMinute, "minute", 0, "Minute of the meal")
	f.Float64Var(&in.MovementFactor, "movement", 1, "Movement factor")
	f.BoolVar(&in.Persist, "persist", false, "Store the calculation on the backend (requires login)")
	f.Float64Var(&usual, "usual-be-calories", 0, "Override calories per bread unit for this call")
	f.Float64Var(&covering, "covering", 0, "Override insulin type calorie covering for this call")
	return cmd
}
