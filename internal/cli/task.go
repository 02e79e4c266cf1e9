package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/patrol/internal/domain"
	"github.com/shaiso/patrol/internal/engine"
	"github.com/shaiso/patrol/internal/mq"
	"github.com/shaiso/patrol/internal/repo"
)

// NewTaskCmd создаёт группу команд для работы с task.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Validate, submit and inspect patrol tasks",
	}

	cmd.AddCommand(
		newTaskValidateCmd(outputFn),
		newTaskSubmitCmd(clientFn, outputFn),
		newTaskCancelCmd(clientFn, outputFn),
		newTaskListCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskValidateCmd(outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a task file without submitting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			task, err := readTask(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task is valid: %d steps", len(task.Steps)))
			printSteps(out, task)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Task JSON file, - for stdin (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newTaskSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file, robotID, taskID string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a task to the engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			defer client.Close()
			out := outputFn()

			task, err := readTask(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			if taskID != "" {
				task.ID = taskID
			}
			if task.ID == "" {
				task.ID = uuid.NewString()
			}
			if robotID != "" {
				task.RobotID = robotID
			}

			commands, err := client.Commands(cmd.Context())
			if err != nil {
				return err
			}
			err = commands.PublishTaskSubmit(cmd.Context(), mq.TaskSubmitPayload{
				TaskID:   task.ID,
				RobotID:  task.RobotID,
				Steps:    task.Steps,
				Metadata: task.Metadata,
			})
			if err != nil {
				return fmt.Errorf("submit task: %w", err)
			}

			out.Success(fmt.Sprintf("Task submitted: %s", task.ID))
			robot := task.RobotID
			if robot == "" {
				robot = "(default)"
			}
			out.Print(
				[]string{"TASK_ID", "ROBOT", "STEPS"},
				[][]string{{task.ID, robot, strconv.Itoa(len(task.Steps))}},
				map[string]any{"task_id": task.ID, "robot_id": task.RobotID, "steps": len(task.Steps)},
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Task JSON file, - for stdin (required)")
	cmd.Flags().StringVar(&robotID, "robot", "", "Robot ID (overrides the file)")
	cmd.Flags().StringVar(&taskID, "id", "", "Task ID (generated if empty)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newTaskCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Request cancellation of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			defer client.Close()
			out := outputFn()

			commands, err := client.Commands(cmd.Context())
			if err != nil {
				return err
			}
			if err := commands.PublishTaskCancel(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("cancel task: %w", err)
			}

			out.Success(fmt.Sprintf("Cancel requested: %s", args[0]))
			return nil
		},
	}
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var robotID, status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			defer client.Close()
			out := outputFn()

			history, err := client.History(cmd.Context())
			if err != nil {
				return err
			}

			tasks, err := history.List(cmd.Context(), repo.TaskFilter{
				RobotID: robotID,
				Status:  domain.TaskStatus(strings.ToUpper(status)),
				Limit:   limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"TASK_ID", "ROBOT", "STATUS", "STEPS", "CREATED", "FINISHED"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = []string{
					t.ID, t.RobotID, string(t.Status), strconv.Itoa(len(t.Steps)),
					formatTime(&t.CreatedAt), formatTime(t.FinishedAt),
				}
			}

			out.Print(headers, rows, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&robotID, "robot", "", "Filter by robot")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (DONE, FAILED, CANCELLED, SHELF_DROPPED)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of tasks")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show an archived task with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			defer client.Close()
			out := outputFn()

			history, err := client.History(cmd.Context())
			if err != nil {
				return err
			}

			task, err := history.GetByID(cmd.Context(), args[0])
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("task %s not found", args[0])
			}
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(task)
				return nil
			}
			out.Success(fmt.Sprintf("Task %s on %s: %s", task.ID, task.RobotID, task.Status))
			printSteps(out, task)
			return nil
		},
	}
}

// readTask читает task из файла (или stdin для "-") и валидирует её.
func readTask(stdin io.Reader, file string) (*domain.Task, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read task: %w", err)
	}
	return engine.ParseTask(data)
}

func printSteps(out *Output, task *domain.Task) {
	headers := []string{"STEP", "ACTION", "STATUS", "SKIP_ON_FAILURE", "RESULT"}
	rows := make([][]string, len(task.Steps))
	for i, s := range task.Steps {
		status := string(s.Status)
		if status == "" {
			status = "-"
		}
		rows[i] = []string{
			s.ID, string(s.Action), status,
			strings.Join(s.SkipOnFailure, ","), describeResult(s.Result),
		}
	}
	out.Print(headers, rows, task)
}

func describeResult(r *domain.StepResult) string {
	switch {
	case r == nil:
		return "-"
	case r.Success:
		return "ok"
	default:
		return fmt.Sprintf("%d %s", r.ErrorCode, r.ErrorMessage)
	}
}
