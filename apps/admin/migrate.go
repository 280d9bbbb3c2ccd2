package main

import "github.com/trezcool/manabi/storage/database"

var runMigrationsFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(args []string) error {
	return runMigrationsFunc(cli.db, cli.conf, args[0], args[1:]...)
}
