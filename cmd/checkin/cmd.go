package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/checkin/internal/models"
	"github.com/noah-isme/checkin/internal/roster"
	"github.com/noah-isme/checkin/internal/service"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	attendance *service.AttendanceService
	exports    *service.ExportService
	prefixSkip int
	dataDir    string
	out        io.Writer
	logger     *zap.Logger
	now        func() time.Time
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  classes                                   - list classes")
	fmt.Fprintln(cli.out, "  students -class CLASS                     - list students of a class")
	fmt.Fprintln(cli.out, "  checkin -class CLASS -name NAME           - record a check-in now")
	fmt.Fprintln(cli.out, "  add-class -name CLASS                     - add an empty class")
	fmt.Fprintln(cli.out, "  remove-class -name CLASS -yes             - delete a class and its history")
	fmt.Fprintln(cli.out, "  import -file ROSTER [-skip N]             - import a CSV or XLSX roster")
	fmt.Fprintln(cli.out, "  audit [-date YYYY-MM-DD] [-sort ORDER]    - list the check-ins of a day")
	fmt.Fprintln(cli.out, "  report [-format txt|csv|pdf]              - write the login-count report")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	switch args[1] {
	case "classes":
		return cli.listClasses(ctx)

	case "students":
		fs := cli.newFlagSet("students")
		class := fs.String("class", "", "Class name.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *class == "" {
			fs.Usage()
			return errHelp
		}
		return cli.listStudents(ctx, *class)

	case "checkin":
		fs := cli.newFlagSet("checkin")
		class := fs.String("class", "", "Class name.")
		name := fs.String("name", "", "Student full name.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *class == "" || strings.TrimSpace(*name) == "" {
			fs.Usage()
			return errHelp
		}
		return cli.checkIn(ctx, *class, *name)

	case "add-class":
		fs := cli.newFlagSet("add-class")
		name := fs.String("name", "", "Class name.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if strings.TrimSpace(*name) == "" {
			fs.Usage()
			return errHelp
		}
		if err := cli.attendance.AddClass(ctx, *name); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "Class %q added.\n", strings.TrimSpace(*name))
		return nil

	case "remove-class":
		fs := cli.newFlagSet("remove-class")
		name := fs.String("name", "", "Class name.")
		yes := fs.Bool("yes", false, "Confirm deletion of the class and all its check-ins.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *name == "" {
			fs.Usage()
			return errHelp
		}
		if !*yes {
			return fmt.Errorf("deleting %q removes all its check-ins; pass -yes to confirm", *name)
		}
		if err := cli.attendance.RemoveClass(ctx, *name); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "Class %q deleted.\n", *name)
		return nil

	case "import":
		fs := cli.newFlagSet("import")
		file := fs.String("file", "", "Roster file (.csv or .xlsx).")
		skip := fs.Int("skip", cli.prefixSkip, "Characters to drop from the start of each course code (0-10).")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *file == "" {
			fs.Usage()
			return errHelp
		}
		return cli.importRoster(ctx, *file, *skip)

	case "audit":
		fs := cli.newFlagSet("audit")
		date := fs.String("date", "", "Day to list (YYYY-MM-DD). Defaults to today.")
		order := fs.String("sort", string(models.AuditOrderDateTimeDesc), "date_time_desc, date_time_asc, student_name or course.")
		format := fs.String("save", "", "Also write the log as txt, csv or pdf.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		return cli.audit(ctx, *date, *order, *format)

	case "report":
		fs := cli.newFlagSet("report")
		format := fs.String("format", string(service.ExportFormatText), "txt, csv or pdf.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		return cli.report(ctx, *format)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) listClasses(ctx context.Context) error {
	classes, err := cli.attendance.ListClasses(ctx)
	if err != nil {
		return err
	}
	for _, c := range classes {
		fmt.Fprintln(cli.out, c)
	}
	return nil
}

func (cli *commandLine) listStudents(ctx context.Context, class string) error {
	students, err := cli.attendance.ListStudents(ctx, class)
	if err != nil {
		return err
	}
	for _, s := range students {
		fmt.Fprintln(cli.out, s)
	}
	return nil
}

func (cli *commandLine) checkIn(ctx context.Context, class, name string) error {
	entry, err := cli.attendance.CheckIn(ctx, class, name, cli.now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s checked in to %s on %s at %s.\n", entry.Student, entry.Class, entry.Date, entry.Time)
	return nil
}

func (cli *commandLine) importRoster(ctx context.Context, path string, skip int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	rows, err := roster.Read(filepath.Base(path), f)
	if err != nil {
		return err
	}
	records, err := roster.Parse(rows, skip)
	if err != nil {
		return err
	}
	result, err := cli.attendance.ImportRoster(ctx, records)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Imported %d records: %d new classes, %d new students, %d already enrolled.\n",
		result.Records, result.ClassesCreated, result.StudentsCreated, result.StudentsExisting)

	exported, err := cli.exports.ExportRoster(ctx, records)
	if err != nil {
		cli.logger.Warn("roster sheet not written", zap.Error(err))
		return nil
	}
	fmt.Fprintf(cli.out, "Roster sheet written to %s.\n", filepath.Join(cli.dataDir, exported.RelativePath))
	return nil
}

func (cli *commandLine) audit(ctx context.Context, rawDate, rawOrder, rawFormat string) error {
	day := cli.now()
	if rawDate != "" {
		parsed, err := time.ParseInLocation(models.DateLayout, rawDate, time.Local)
		if err != nil {
			return fmt.Errorf("date must be formatted YYYY-MM-DD: %w", err)
		}
		day = parsed
	}
	order, ok := models.ParseAuditOrder(rawOrder)
	if !ok {
		return fmt.Errorf("unknown sort option %q", rawOrder)
	}
	entries, err := cli.attendance.TodaysCheckIns(ctx, day, order)
	if err != nil {
		return err
	}
	fmt.Fprint(cli.out, service.AuditText(entries))

	if rawFormat == "" {
		return nil
	}
	format, err := service.ParseExportFormat(rawFormat)
	if err != nil {
		return err
	}
	result, err := cli.exports.ExportAudit(ctx, day, order, format)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Audit log written to %s.\n", filepath.Join(cli.dataDir, result.RelativePath))
	return nil
}

func (cli *commandLine) report(ctx context.Context, rawFormat string) error {
	format, err := service.ParseExportFormat(rawFormat)
	if err != nil {
		return err
	}
	if format == service.ExportFormatText {
		summaries, err := cli.attendance.SummaryReport(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(cli.out, service.SummaryText(summaries))
	}
	result, err := cli.exports.ExportSummary(ctx, format)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Report written to %s.\n", filepath.Join(cli.dataDir, result.RelativePath))
	return nil
}
