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

//go:build nofakedb

package fakedb

import (
	"context"
	"errors"
)

// Start is unavailable in builds tagged nofakedb, which leave out the
// in-process database server and its dependencies.
func Start(
	ctx context.Context, dbName, host string, port int32, username, password string,
) (actualPort int32, err error) {
	return 0, errors.New("this binary was built without the fake DB (nofakedb)")
}
