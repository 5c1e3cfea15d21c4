package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"issuebot/internal/domain"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage registered users",
}

var userSetRoleCmd = &cobra.Command{
	Use:   "set-role <user-id> <employee|admin|super_admin>",
	Short: "Set a user's role (creates the user if missing)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		role, err := domain.ParseRole(args[1])
		if err != nil {
			return err
		}
		dir, st, err := openDirectory(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		if err := dir.ForceRole(cmd.Context(), id, role); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %d is now %s\n", id, role)
		return nil
	},
}

var profile struct {
	employeeID string
	fullName   string
	department string
	jobTitle   string
	phone      string
	manager    int64
}

var userSetProfileCmd = &cobra.Command{
	Use:   "set-profile <user-id>",
	Short: "Replace a user's organizational profile",
	Long: `Replace a user's organizational profile. Omitted flags clear the field.

Example:
  bot user set-profile 12345 --employee-id E-17 --department Ops --manager 999`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		p := domain.Profile{
			EmployeeID: profile.employeeID,
			FullName:   profile.fullName,
			Department: profile.department,
			JobTitle:   profile.jobTitle,
			Phone:      profile.phone,
		}
		if profile.manager != 0 {
			m := profile.manager
			p.ManagerID = &m
		}
		dir, st, err := openDirectory(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		if err := dir.SetProfile(cmd.Context(), id, p); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "profile of user %d updated\n", id)
		return nil
	},
}

var userShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Print a registered user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		dir, st, err := openDirectory(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		u, ok, err := dir.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("user %d is not registered", id)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "id:         %d\n", u.ID)
		fmt.Fprintf(w, "name:       %s\n", u.DisplayName())
		fmt.Fprintf(w, "role:       %s\n", u.Role)
		fmt.Fprintf(w, "status:     %s\n", u.Status)
		fmt.Fprintf(w, "registered: %s\n", u.CreatedAt.Format("2006-01-02 15:04"))
		fmt.Fprintf(w, "last seen:  %s\n", u.LastSeen.Format("2006-01-02 15:04"))
		if u.Profile.Department != "" {
			fmt.Fprintf(w, "department: %s\n", u.Profile.Department)
		}
		return nil
	},
}

func init() {
	f := userSetProfileCmd.Flags()
	f.StringVar(&profile.employeeID, "employee-id", "", "Employee number (unique)")
	f.StringVar(&profile.fullName, "full-name", "", "Full name")
	f.StringVar(&profile.department, "department", "", "Department")
	f.StringVar(&profile.jobTitle, "job-title", "", "Job title")
	f.StringVar(&profile.phone, "phone", "", "Phone number")
	f.Int64Var(&profile.manager, "manager", 0, "User id of the manager")

	userCmd.AddCommand(userSetRoleCmd, userSetProfileCmd, userShowCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}
