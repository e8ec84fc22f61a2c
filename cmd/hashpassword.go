//
// See the file COPYRIGHT for copyright information.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"github.com/rowan-franciscus/onus-health-application-sub001/lib/authn"
	"github.com/spf13/cobra"
	"io"
	"log"
	"os"
	"strings"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash_password",
	Short: "Get a bcrypt hash of a password",
	Long: "Get a bcrypt hash of a password\n\n" +
		"The result can be stored as an account's PASSWORD. Without --password, " +
		"the password is read from the first line of stdin, which keeps it out of shell history.",
	Run: runHashPassword,
}

// password gets passed in as a flag.
var password string

func init() {
	rootCmd.AddCommand(hashPasswordCmd)

	hashPasswordCmd.Flags().StringVar(&password, "password", "", "The password to hash")
}

func runHashPassword(cmd *cobra.Command, args []string) {
	if err := hashPassword(password, os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func hashPassword(pw string, in io.Reader, out io.Writer) error {
	if pw == "" {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("[ReadString]: %w", err)
		}
		pw = strings.TrimRight(line, "\r\n")
	}
	if pw == "" {
		return errors.New("no password given")
	}
	hashed, err := authn.NewSalted(pw)
	if err != nil {
		return fmt.Errorf("[NewSalted]: %w", err)
	}
	_, err = fmt.Fprintln(out, hashed)
	return err
}
