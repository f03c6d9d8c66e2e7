// portalctl is the operator tool: it hashes admin passwords, imports tests
// from YAML and creates student accounts against the configured database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/testportal/internal/config"
	"github.com/mind-engage/testportal/internal/db"
	"github.com/mind-engage/testportal/internal/models"
	"github.com/mind-engage/testportal/internal/seed"
	"github.com/mind-engage/testportal/internal/store"
)

const usage = `usage: portalctl <command> [args]

commands:
  hash-password <plain>        print a bcrypt hash for ADMIN_PASS_HASH
  import-tests <file.yaml>     create tests from a YAML file
  create-student [flags]       create a student with a login (-h for flags)
`

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "hash-password":
		err = hashPassword(args)
	case "import-tests":
		err = importTests(args)
	case "create-student":
		err = createStudent(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("portalctl: %v", err)
	}
}

func hashPassword(args []string) error {
	if len(args) != 1 || args[0] == "" {
		return fmt.Errorf("hash-password takes exactly one argument")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	fmt.Println(string(h))
	return nil
}

func importTests(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("import-tests takes exactly one file")
	}
	tests, err := seed.DecodeFile(args[0])
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	st, closeDB, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	created, err := seed.Import(ctx, st, tests)
	for _, t := range created {
		fmt.Printf("created test %d %q (%d questions)\n", t.ID, t.Title, len(t.Questions))
	}
	return err
}

func createStudent(args []string) error {
	fs := flag.NewFlagSet("create-student", flag.ContinueOnError)
	username := fs.String("username", "", "login name (required)")
	password := fs.String("password", "", "initial password (required)")
	first := fs.String("first", "", "first name (required)")
	last := fs.String("last", "", "last name (required)")
	group := fs.String("group", "", "class or group")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return fmt.Errorf("-username and -password are required")
	}
	s := models.Student{FirstName: *first, LastName: *last, Group: *group}
	if err := s.Validate(); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	st, closeDB, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	created, err := st.CreateStudent(ctx, s, *username, string(hash))
	if err != nil {
		return err
	}
	fmt.Printf("created student %d %s (%s)\n", created.ID, created.FullName(), *username)
	return nil
}

func openStore(ctx context.Context) (*store.SQLStore, func(), error) {
	cfg := config.FromEnv()
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		return nil, nil, err
	}
	dbh, err := db.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	return store.NewSQLStore(dbh), func() { dbh.Close() }, nil
}
