package progress

import _ "time/tzdata"
