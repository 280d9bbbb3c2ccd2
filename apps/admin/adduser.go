package main

import (
	"context"
	"fmt"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	usr, err := cli.usrSvc.AddOrUpdate(context.Background(), uname, email, pwd, isAdmin)
	if err != nil {
		return err
	}
	fmt.Printf("user %s (%s) saved\n", usr.Username, usr.ID)
	return nil
}
