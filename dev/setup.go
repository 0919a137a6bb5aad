package main

import (
	"fmt"
	"log/slog"
	"os"
	devenv "visionsync-backend/dev/env"
	configlibsql "visionsync-backend/lib/configutil/libsql"
	"visionsync-backend/services/appointments/db"
)

func CreateDatabase() error {
	config := configlibsql.Struct{File: "<dev_state>/visionsync.db"}
	path, err := devenv.ResolvePath(config.File)
	if err != nil {
		return err
	}
	fmt.Println("applying schema to", path)
	database, err := config.OpenDB(db.Schema)
	if err != nil {
		return err
	}
	return database.Close()
}

const testConfigTemplate = `// credentials for the tests that talk to a real VisionPlus instance,
// they are skipped while base_url is empty
{
  base_url: "",
  username: "",
  password: "",
}
`

func WriteTestConfigTemplate() error {
	path, err := devenv.GetStateFilePath("visionplus_config.json5")
	if err != nil {
		return err
	}
	_, err = os.Stat(path)
	if err == nil {
		fmt.Println("test config already exists at", path)
		return nil
	}
	fmt.Println("writing test config template to", path)
	return os.WriteFile(path, []byte(testConfigTemplate), 0600)
}

func PrintConfigLocations() {
	slog.Info("fill in dev/.state/visionplus_config.json5 to run the live VisionPlus tests, see the skipped tests in `go test -v` for the rest.")
}
